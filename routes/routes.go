// Package routes provides the REST route constants the SDK calls, so request
// paths live in one place.
package routes

const (
	// Captcha describes the active captcha provider and its public config.
	Captcha = "/api/captcha"

	// CaptchaImage issues a fresh image challenge (id + image).
	CaptchaImage = "/api/captcha/image"

	// Login exchanges credentials (plus captcha fields) for a bearer token.
	Login = "/api/login"

	// Register creates an account.
	Register = "/api/register"

	// PasswordResetRequest mails a password reset link.
	PasswordResetRequest = "/api/auth/password/reset/request" // #nosec G101 -- route path, not a credential

	// PasswordReset sets a new password using the mailed token.
	PasswordReset = "/api/auth/password/reset" // #nosec G101 -- route path, not a credential

	// EmailVerify confirms an email address using the mailed token.
	EmailVerify = "/api/auth/email-verify"

	// UserProfile returns the authenticated user.
	UserProfile = "/api/user/profile"

	// WebInfo returns the public site settings as key/value pairs.
	WebInfo = "/api/webinfo"

	// UserImages lists the signed-in user's images (paged).
	UserImages = "/api/user/images"

	// UserImagesBatch deletes several of the user's images at once.
	UserImagesBatch = "/api/user/images/batch"

	// UserImagesCount returns how many images the user owns.
	UserImagesCount = "/api/user/images/count"

	// UserImageByID deletes one of the user's images.
	UserImageByID = "/api/user/images/{id}"

	// UserUpload stores a new image (multipart field "file").
	UserUpload = "/api/user/upload"

	// UserAvatar replaces the user's avatar (multipart field "file").
	UserAvatar = "/api/user/avatar"

	// UserPassword changes the user's password.
	UserPassword = "/api/user/password" // #nosec G101 -- route path, not a credential

	// UserUsername renames the user.
	UserUsername = "/api/user/username"

	// AdminUsers lists and creates accounts.
	AdminUsers = "/api/admin/users"

	// AdminUserByID reads, updates and deletes one account.
	AdminUserByID = "/api/admin/users/{id}"

	// AdminUserAvatar sets or removes an account's avatar.
	AdminUserAvatar = "/api/admin/users/{id}/avatar"

	// AdminImages lists every stored image.
	AdminImages = "/api/admin/images"

	// AdminImagesBatch deletes several images at once.
	AdminImagesBatch = "/api/admin/images/batch"

	// AdminImageByID deletes one image.
	AdminImageByID = "/api/admin/images/{id}"

	// AdminSettings reads and patches the site settings.
	AdminSettings = "/api/admin/settings"

	// AdminStats returns storage and host statistics.
	AdminStats = "/api/admin/stats"

	// Init reports and performs first-run setup.
	Init = "/api/init"

	// ImagePrefix returns the URL prefix for stored image paths.
	ImagePrefix = "/api/image_prefix"

	// AvatarPrefix returns the URL prefix for avatars.
	AvatarPrefix = "/api/avatar_prefix"
)
