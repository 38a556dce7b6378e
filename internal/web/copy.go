package web

// UICopy is the wording that differs between front-end revisions.
type UICopy struct {
	Name              string
	SignUpButton      string
	ChatHeadingPrefix string
}

var (
	CopyCurrent = UICopy{Name: "current", SignUpButton: "Create Account", ChatHeadingPrefix: "AI Assistant for"}
	CopyLegacy  = UICopy{Name: "legacy", SignUpButton: "Sign Up", ChatHeadingPrefix: "Conversation with AI for"}
)

// CopyByName returns the preset called name. Empty selects CopyCurrent.
func CopyByName(name string) (UICopy, bool) {
	switch name {
	case "", CopyCurrent.Name:
		return CopyCurrent, true
	case CopyLegacy.Name:
		return CopyLegacy, true
	}
	return UICopy{}, false
}
