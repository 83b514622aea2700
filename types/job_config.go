package types

import (
	"fmt"

	"github.com/RezaEskandarii/tide/custom_errors"
	"github.com/mitchellh/copystructure"
	"github.com/robfig/cron/v3"
)

// CadenceParser accepts standard five field expressions plus descriptors such as "@hourly".
var CadenceParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Application is the container application definition handed to the application manager.
// It is persisted verbatim, so unknown keys survive a round trip.
type Application map[string]any

// JobConfig is the externally supplied definition of a recurring job.
type JobConfig struct {
	ID          string      `json:"id"`
	Schedule    string      `json:"schedule"`
	Instances   int         `json:"instances"`
	Application Application `json:"application"`
}

// Clone returns a deep copy, so nested application maps are never shared.
func (c JobConfig) Clone() JobConfig {
	out := c
	if c.Application == nil {
		return out
	}
	cp, err := copystructure.Copy(map[string]any(c.Application))
	if err != nil {
		// copystructure only fails on unsupported kinds which JSON decoded maps never contain
		panic(fmt.Sprintf("tide: copy application %q: %v", c.ID, err))
	}
	out.Application = Application(cp.(map[string]any))
	return out
}

// Validate checks the fields the scheduler depends on.
func (c JobConfig) Validate() error {
	validationErrs := &custom_errors.ValidationError{}
	if c.ID == "" {
		validationErrs.Add(fmt.Errorf("job id is required"))
	}
	if c.Schedule == "" {
		validationErrs.Add(fmt.Errorf("job %q: schedule is required", c.ID))
	} else if _, err := CadenceParser.Parse(c.Schedule); err != nil {
		validationErrs.Add(fmt.Errorf("job %q: invalid schedule %q: %w", c.ID, c.Schedule, err))
	}
	if c.Instances < 1 {
		validationErrs.Add(fmt.Errorf("job %q: instances must be positive", c.ID))
	}
	if validationErrs.HasError() {
		return validationErrs.Err()
	}
	return nil
}

// ID returns the application id, falling back to the empty string.
func (a Application) ID() string {
	id, _ := a["id"].(string)
	return id
}

// Metadata returns tags.metadata, creating the intermediate maps when missing.
func (a Application) Metadata() map[string]any {
	tags, ok := asMap(a["tags"])
	if !ok {
		tags = map[string]any{}
		a["tags"] = tags
	}
	metadata, ok := asMap(tags["metadata"])
	if !ok {
		metadata = map[string]any{}
		tags["metadata"] = metadata
	}
	return metadata
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Application:
		return m, true
	}
	return nil, false
}
