// Package offsets maps master timeline onto parts of a published video. Every
// part is assigned to a variant (parallel edit of the same footage) and gets
// local offset either explicitly configured or continued from the previous
// part of the same variant.
package offsets

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode of an offset.
type Mode int

const (
	ModeAuto Mode = iota
	ModeExplicit
	ModeSkip
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeExplicit:
		return "explicit"
	case ModeSkip:
		return "skip"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Spec is offset configured for a single part. Zero value is Auto.
type Spec struct {
	mode    Mode
	seconds int
}

// Auto continues from the end of the previous part of the same variant.
func Auto() Spec { return Spec{mode: ModeAuto} }

// Explicit pins part start to the given master timeline second.
func Explicit(seconds int) Spec { return Spec{mode: ModeExplicit, seconds: seconds} }

// Skip excludes part from the variant.
func Skip() Spec { return Spec{mode: ModeSkip} }

// Mode returns offset mode.
func (s Spec) Mode() Mode { return s.mode }

// Seconds returns explicit offset, zero for other modes.
func (s Spec) Seconds() int { return s.seconds }

func (s Spec) String() string {
	if s.mode == ModeExplicit {
		return strconv.Itoa(s.seconds)
	}
	return s.mode.String()
}

// UnmarshalYAML accepts integer (explicit), "auto" or any other scalar which
// means skip.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: offset must be integer or \"auto\"", node.Line)
	}
	switch {
	case node.ShortTag() == "!!int":
		var v int
		if err := node.Decode(&v); err != nil {
			return err
		}
		*s = Explicit(v)
	case strings.EqualFold(node.Value, "auto"):
		*s = Auto()
	default:
		*s = Skip()
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s Spec) MarshalYAML() (any, error) {
	if s.mode == ModeExplicit {
		return s.seconds, nil
	}
	return s.mode.String(), nil
}

// Variant describes one parallel edit. Parts whose title contains Key (and
// none of Exclude) belong to it, empty Key matches any part not claimed by
// other variants.
type Variant struct {
	ID         string   `yaml:"id,omitempty"`
	Key        string   `yaml:"key"`
	Exclude    []string `yaml:"exclude,omitempty"`
	Offsets    []Spec   `yaml:"offsets,omitempty"`
	Marker     string   `yaml:"marker"`
	JumpOpDesc string   `yaml:"jumpOpDesc,omitempty"`
}

// Wildcard reports whether variant matches any part.
func (v Variant) Wildcard() bool {
	return len(v.Key) == 0
}

// Matches reports whether part title belongs to this variant.
func (v Variant) Matches(title string) bool {
	for _, ex := range v.Exclude {
		if len(ex) > 0 && strings.Contains(title, ex) {
			return false
		}
	}
	return strings.Contains(title, v.Key)
}

// VariantID returns identity used by entry masks: explicit id or position in
// configuration.
func VariantID(v Variant, index int) string {
	if len(v.ID) > 0 {
		return v.ID
	}
	return strconv.Itoa(index)
}

// Legacy builds variants from flat offset lists used by old configurations:
// optional danmaku edit and catch all clean edit.
func Legacy(offsets, danmakuOffsets []Spec, withDanmaku bool) []Variant {
	var out []Variant
	if withDanmaku {
		out = append(out, Variant{
			Key:        "弹幕",
			Exclude:    []string{"无弹幕"},
			Offsets:    danmakuOffsets,
			Marker:     "弹",
			JumpOpDesc: "🪂点此跳过OP (弹幕版)",
		})
	}
	return append(out, Variant{
		Offsets:    offsets,
		JumpOpDesc: "🪂点此跳过OP (纯净版)",
	})
}
