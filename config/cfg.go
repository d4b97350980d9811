package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strconv"

	validator "github.com/go-playground/validator/v10"
	"github.com/rupor-github/gencfg"
	yaml "gopkg.in/yaml.v3"

	"tlnote/assemble"
	"tlnote/bilibili"
	"tlnote/offsets"
	"tlnote/utils/images"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	TemplateFieldName string

	PublishConfig struct {
		BVID   string       `yaml:"bvid" validate:"omitempty,startswith=BV,len=12"`
		Cookie SecretString `yaml:"cookie"`

		Timeline       string `yaml:"timeline" sanitize:"path_clean" validate:"omitempty,filepath"`
		TimelineFormat string `yaml:"timeline_format" validate:"omitempty,oneof=csv txt pbf xml"`
		Charset        string `yaml:"charset"`

		Publish     bool `yaml:"publish"`
		AutoComment bool `yaml:"auto_comment"`
		HidePart    bool `yaml:"hide_part"`

		// Cover is summary template, expanded for every pass.
		Cover      string `yaml:"cover"`
		SummaryMax int    `yaml:"summary_max" validate:"gte=0"`

		IgnoreThreshold int `yaml:"ignore_threshold" validate:"gte=0"`

		// Output is file name template for plain text timeline, empty disables it.
		Output  string `yaml:"output"`
		Preview bool   `yaml:"preview"`

		Variants       []offsets.Variant `yaml:"variants" validate:"dive"`
		Offsets        []offsets.Spec    `yaml:"offsets,omitempty"`
		DanmakuOffsets []offsets.Spec    `yaml:"danmakuOffsets,omitempty"`

		Template []string       `yaml:"template"`
		Style    assemble.Style `yaml:"style"`
	}

	ImagesConfig struct {
		images.Config `yaml:",inline"`
		// DefaultWidth is display width of uploaded images in the note.
		DefaultWidth int    `yaml:"default_width" validate:"gt=0"`
		URLTemplate  string `yaml:"url_template" validate:"required,contains=%s"`
	}

	Config struct {
		Version   int             `yaml:"version" validate:"eq=1"`
		Publish   PublishConfig   `yaml:"publish"`
		Platform  bilibili.Config `yaml:"platform"`
		Images    ImagesConfig    `yaml:"images"`
		Logging   LoggingConfig   `yaml:"logging"`
		Reporting ReporterConfig  `yaml:"reporting"`
	}
)

const (
	// NOTE: must match yaml field names above, these hold templates expanded
	// at run time
	CoverTemplateFieldName  TemplateFieldName = "cover"
	OutputTemplateFieldName TemplateFieldName = "output"
)

// CookieEnvVar supplies session cookie when configuration has none, so it
// does not have to be stored in configuration file.
const CookieEnvVar = "TLNOTE_COOKIE"

var requiredOptions = append([]func(*gencfg.ProcessingOptions){},
	gencfg.WithDoNotExpandField(string(CoverTemplateFieldName)),
	gencfg.WithDoNotExpandField(string(OutputTemplateFieldName)),
)

// EffectiveVariants returns configured variants. When none are configured
// but legacy offset lists are present variants are synthesized from them,
// legacy is set in that case.
func (p *PublishConfig) EffectiveVariants() (variants []offsets.Variant, legacy bool) {
	if len(p.Variants) > 0 || (len(p.Offsets) == 0 && len(p.DanmakuOffsets) == 0) {
		return p.Variants, false
	}
	return offsets.Legacy(p.Offsets, p.DanmakuOffsets, len(p.DanmakuOffsets) > 0), true
}

// EffectiveTemplate returns configured template or the default one.
func (p *PublishConfig) EffectiveTemplate() []string {
	if len(p.Template) == 0 {
		return assemble.DefaultTemplate
	}
	return p.Template
}

// checkVariants makes sure offset resolution is unambiguous: at most one
// wildcard variant and unique variant ids.
func checkVariants(sl validator.StructLevel) {
	cfg, ok := sl.Current().Interface().(Config)
	if !ok {
		return
	}
	variants, _ := cfg.Publish.EffectiveVariants()

	wildcards := 0
	ids := make(map[string]bool, len(variants))
	for i, v := range variants {
		if v.Wildcard() {
			wildcards++
			if wildcards > 1 {
				sl.ReportError(v.Key, "Publish.Variants["+strconv.Itoa(i)+"].Key", "Key", "single_wildcard", "")
			}
		}
		id := offsets.VariantID(v, i)
		if ids[id] {
			sl.ReportError(v.ID, "Publish.Variants["+strconv.Itoa(i)+"].ID", "ID", "unique_id", id)
		}
		ids[id] = true
	}
}

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg, gencfg.WithAdditionalChecks(checkVariants)); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to
// provide sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, append(requiredOptions, options...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if haveFile {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		cfg, err = unmarshalConfig(data, cfg, haveFile)
		if err != nil {
			return nil, fmt.Errorf("failed to process configuration file: %w", err)
		}
	}
	if len(cfg.Publish.Cookie) == 0 {
		cfg.Publish.Cookie = SecretString(os.Getenv(CookieEnvVar))
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a
// byte slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl, requiredOptions...)
}

// Dump returns effective configuration, secrets are masked.
func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %w", err)
	}
	return data, nil
}
