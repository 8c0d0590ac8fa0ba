package normalize

import (
	"strings"

	"github.com/user/notifyr/internal/types"
)

// platformHints maps package-id substrings to platforms. Matching happens
// exactly once, at ingestion; consumers read the resolved tag off the event.
var platformHints = []struct {
	substr   string
	platform types.Platform
}{
	{"telegram", types.PlatformTelegram},
	{"whatsapp", types.PlatformWhatsApp},
	{"signal", types.PlatformSignal},
	{"securesms", types.PlatformSignal},
	{"mms", types.PlatformSMS},
	{"messaging", types.PlatformSMS},
}

// DetectPlatform resolves a package id to a closed platform tag, falling
// back to PlatformGeneric for apps it does not recognize.
func DetectPlatform(packageID string) types.Platform {
	pkg := strings.ToLower(packageID)
	for _, h := range platformHints {
		if strings.Contains(pkg, h.substr) {
			return h.platform
		}
	}
	return types.PlatformGeneric
}
