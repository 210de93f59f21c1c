//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation -framework Cocoa -framework CoreGraphics
#import <AVFoundation/AVFoundation.h>
#import <Cocoa/Cocoa.h>
#import <CoreGraphics/CoreGraphics.h>

int checkMicrophonePermission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

void requestMicrophonePermission() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}

int checkAccessibilityPermission() {
    NSDictionary *options = @{(__bridge id)kAXTrustedCheckOptionPrompt: @YES};
    return AXIsProcessTrustedWithOptions((__bridge CFDictionaryRef)options) ? 1 : 0;
}

int checkScreenCapturePermission() {
    return CGPreflightScreenCaptureAccess() ? 1 : 0;
}

void requestScreenCapturePermission() {
    CGRequestScreenCaptureAccess();
}
*/
import "C"

import (
	"fmt"

	"github.com/rs/zerolog"
)

const (
	PermissionNotDetermined = 0
	PermissionRestricted    = 1
	PermissionDenied        = 2
	PermissionAuthorized    = 3
)

// CheckMicrophone returns the current audio input permission status. Input
// devices include loopback drivers such as BlackHole.
func CheckMicrophone() int {
	return int(C.checkMicrophonePermission())
}

// RequestMicrophone triggers the system microphone permission dialog
func RequestMicrophone() {
	C.requestMicrophonePermission()
}

// CheckAccessibility checks if the app has accessibility permissions (needed
// for hotkeys). The system prompt is shown when it has not.
func CheckAccessibility() bool {
	return C.checkAccessibilityPermission() == 1
}

// CheckScreenCapture reports whether system audio may be captured.
func CheckScreenCapture() bool {
	return C.checkScreenCapturePermission() == 1
}

// RequestScreenCapture triggers the screen and system audio recording dialog
func RequestScreenCapture() {
	C.requestScreenCapturePermission()
}

// EnsurePermissions checks and requests all required permissions
func EnsurePermissions(log zerolog.Logger) error {
	if CheckMicrophone() != PermissionAuthorized {
		log.Warn().Msg("Audio input permission required")
		RequestMicrophone()
		return fmt.Errorf("microphone permission not granted")
	}

	if !CheckScreenCapture() {
		log.Warn().Msg("Screen & System Audio Recording permission required for loopback capture")
		RequestScreenCapture()
		return fmt.Errorf("system audio recording permission not granted")
	}

	if !CheckAccessibility() {
		log.Warn().
			Str("settings", "System Settings → Privacy & Security → Accessibility").
			Msg("Accessibility permission required for hotkeys")
		return fmt.Errorf("accessibility permission not granted")
	}

	return nil
}
