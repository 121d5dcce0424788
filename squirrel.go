// Package squirrel carries the version metadata of the embeddable Squirrel VM.
//
// The engine itself lives in the vm package; compiler and pkg/bytecode provide
// the front end and the chunk format.
package squirrel

// VersionNumber is the numeric engine version (major*100 + minor).
const VersionNumber = 310

// VersionString is the human-readable engine version.
const VersionString = "Squirrel 3.1 (go)"
