package ir

// Version is the flyter release version.
const Version = "0.1.0"
