package devices

import "github.com/dkeye/VoiceAgent/internal/domain"

// Controls says which controls the UI shows.
type Controls struct {
	Leave       bool `json:"leave"`
	Microphone  bool `json:"microphone"`
	Camera      bool `json:"camera"`
	ScreenShare bool `json:"screenShare"`
	Chat        bool `json:"chat"`
}

// Visibility derives Controls from the app config and the room's permissions:
// a control is shown when it is both configured and permitted.
type Visibility struct {
	cfg      domain.AppConfig
	perms    domain.Permissions
	cur      Controls
	onChange []func()
}

func NewVisibility(cfg domain.AppConfig, perms domain.Permissions) *Visibility {
	v := &Visibility{cfg: cfg, perms: perms}
	v.cur = compute(cfg, perms)
	return v
}

func (v *Visibility) OnChange(fn func()) { v.onChange = append(v.onChange, fn) }

func (v *Visibility) Controls() Controls { return v.cur }

func (v *Visibility) SetConfig(cfg domain.AppConfig) {
	v.cfg = cfg
	v.recompute()
}

func (v *Visibility) SetPermissions(perms domain.Permissions) {
	v.perms = perms
	v.recompute()
}

func (v *Visibility) recompute() {
	next := compute(v.cfg, v.perms)
	if next == v.cur {
		return
	}
	v.cur = next
	for _, fn := range v.onChange {
		fn()
	}
}

func compute(cfg domain.AppConfig, perms domain.Permissions) Controls {
	return Controls{
		Leave:       true,
		Microphone:  perms.Microphone,
		Camera:      cfg.SupportsVideoInput && perms.Camera,
		ScreenShare: cfg.SupportsScreenShare && perms.ScreenShare,
		Chat:        cfg.SupportsChatInput && perms.Data,
	}
}
