package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"stackedcsv/internal/dataprocessing"
	apperrors "stackedcsv/internal/errors"
	"stackedcsv/internal/splitter"
)

// JobConfig describes one split job: how to recognise the stacked tables in
// the input and how to turn them into unified records.
type JobConfig struct {
	Discriminator string `yaml:"discriminator" validate:"required"`
	// HeaderRepeat defaults to Discriminator.
	HeaderRepeat string `yaml:"header_repeat,omitempty"`
	KeyMarker    string `yaml:"key_marker" validate:"required"`

	DropColumns         []string          `yaml:"drop_columns,omitempty" validate:"dive,required"`
	DropEmptyKeyColumns bool              `yaml:"drop_empty_key_columns,omitempty"`
	Rename              map[string]string `yaml:"rename" validate:"required,min=1,dive,keys,required,endkeys,required"`
	Prefixes            []PrefixConfig    `yaml:"prefixes,omitempty" validate:"dive"`
	TrimSpace           bool              `yaml:"trim_space"`

	Join        string `yaml:"join,omitempty" validate:"omitempty,oneof=inner left"`
	ValueSuffix string `yaml:"value_suffix,omitempty"`

	FailOnOrphans   bool `yaml:"fail_on_orphans"`
	FailOnUnmatched bool `yaml:"fail_on_unmatched"`

	// AcceptUnified passes files already in the unified layout through unchanged.
	AcceptUnified bool `yaml:"accept_unified,omitempty"`

	Input InputConfig `yaml:"input"`
}

// PrefixConfig strips Prefix from the renamed column Field.
type PrefixConfig struct {
	Field  string `yaml:"field" validate:"required"`
	Prefix string `yaml:"prefix" validate:"required"`
}

// InputConfig controls loading of the input file.
type InputConfig struct {
	Sheet            string   `yaml:"sheet,omitempty"`
	HeaderKeyword    string   `yaml:"header_keyword,omitempty"`
	NAValues         []string `yaml:"na_values,omitempty"`
	DropUnnamedEmpty bool     `yaml:"drop_unnamed_empty"`
	Delimiter        string   `yaml:"delimiter,omitempty" validate:"omitempty,len=1"`
}

// DefaultJob returns the settings of the run-log export the tool was written
// for: a "Row Type" column whose key rows read "first name: ...".
func DefaultJob() *JobConfig {
	return &JobConfig{
		Discriminator: "Row Type",
		HeaderRepeat:  "Row Type",
		KeyMarker:     "first name",
		DropColumns:   []string{"Speed1", "Speed2", "Electricity", "Effort", "Weight", "Torque"},
		Rename: map[string]string{
			"Row Type":    "First Name",
			"Iter Number": "Last Name",
			"Power1":      "Date",
		},
		Prefixes: []PrefixConfig{
			{Field: "First Name", Prefix: "first name: "},
			{Field: "Last Name", Prefix: "last name: "},
			{Field: "Date", Prefix: "date: "},
		},
		TrimSpace: true,
		Join:      string(splitter.JoinInner),
		Input: InputConfig{
			HeaderKeyword:    "Row Type",
			DropUnnamedEmpty: true,
		},
	}
}

var jobValidator = newJobValidator()

func newJobValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their YAML names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// LoadJob reads and validates a job file.
func LoadJob(path string) (*JobConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigError("failed to read job file", err).WithContext("path", path)
	}
	job, err := ParseJob(data)
	if err != nil {
		if app, ok := err.(*apperrors.AppError); ok {
			return nil, app.WithContext("path", path)
		}
		return nil, err
	}
	return job, nil
}

// ParseJob decodes and validates a YAML job.
func ParseJob(data []byte) (*JobConfig, error) {
	var job JobConfig
	if err := yaml.UnmarshalStrict(data, &job); err != nil {
		return nil, apperrors.NewConfigError("failed to decode job", err)
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

// Validate checks the struct tags and then the splitter rules.
func (j *JobConfig) Validate() error {
	if err := jobValidator.Struct(j); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return apperrors.NewConfigError("invalid job", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, formatFieldError(fe))
		}
		return apperrors.NewConfigError("invalid job: "+strings.Join(msgs, "; "), err)
	}
	if err := j.ToSplitter().Validate(); err != nil {
		return apperrors.NewConfigError("invalid job", err)
	}
	return nil
}

// formatFieldError formats validation error messages
func formatFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "JobConfig.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be %s character long", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// ToSplitter converts the job to the pipeline configuration.
func (j *JobConfig) ToSplitter() splitter.Config {
	cfg := splitter.Config{
		Discriminator:       j.Discriminator,
		HeaderRepeat:        j.HeaderRepeat,
		KeyMarker:           j.KeyMarker,
		DropColumns:         append([]string(nil), j.DropColumns...),
		DropEmptyKeyColumns: j.DropEmptyKeyColumns,
		Rename:              make(map[string]string, len(j.Rename)),
		TrimSpace:           j.TrimSpace,
		Join:                splitter.JoinMode(j.Join),
		ValueSuffix:         j.ValueSuffix,
		FailOnOrphans:       j.FailOnOrphans,
		FailOnUnmatched:     j.FailOnUnmatched,
		AcceptUnified:       j.AcceptUnified,
	}
	if cfg.HeaderRepeat == "" {
		cfg.HeaderRepeat = j.Discriminator
	}
	for from, to := range j.Rename {
		cfg.Rename[from] = to
	}
	for _, p := range j.Prefixes {
		cfg.Prefixes = append(cfg.Prefixes, splitter.PrefixRule{Field: p.Field, Prefix: p.Prefix})
	}
	return cfg
}

// LoadOptions returns the loader settings of the job.
func (j *JobConfig) LoadOptions() dataprocessing.LoadOptions {
	opts := dataprocessing.LoadOptions{
		Sheet:            j.Input.Sheet,
		HeaderKeyword:    j.Input.HeaderKeyword,
		NAValues:         append([]string(nil), j.Input.NAValues...),
		DropUnnamedEmpty: j.Input.DropUnnamedEmpty,
	}
	if opts.HeaderKeyword == "" {
		opts.HeaderKeyword = j.Discriminator
	}
	if j.Input.Delimiter != "" {
		opts.Comma = []rune(j.Input.Delimiter)[0]
	}
	return opts
}

// Marshal renders the job as YAML.
func (j *JobConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(j)
}
