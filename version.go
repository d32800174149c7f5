package sdk

// Version is the published SDK version.
// 0.3.0: Geetest v4 tokens are base64 JSON; widget mounts take the session epoch.
// 0.2.0: Add Site and User clients.
const Version = "0.3.0"
