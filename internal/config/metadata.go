package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"powerview/internal/domain"
)

// coreMetadataFields are stored in dedicated columns; every other key goes
// into MeterMetadata.Extra.
var coreMetadataFields = map[string]struct{}{
	"id":          {},
	"name":        {},
	"type":        {},
	"location":    {},
	"description": {},
}

type meteringPointsFile struct {
	MeteringPoints map[string]map[string]any `yaml:"metering_points"`
}

// LoadMeteringPoints reads metering point metadata from a YAML file of the
// form:
//
//	metering_points:
//	  "571313...":
//	    name: House
//	    type: consumption
//	    location: Home
//
// The result is sorted by metering point ID.
func LoadMeteringPoints(path string) ([]domain.MeterMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f meteringPointsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return BuildMetadata(f.MeteringPoints), nil
}

// BuildMetadata normalises a metering point ID → attributes map into
// MeterMetadata values sorted by ID. The name defaults to the ID.
func BuildMetadata(points map[string]map[string]any) []domain.MeterMetadata {
	ids := make([]string, 0, len(points))
	for id := range points {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]domain.MeterMetadata, 0, len(ids))
	for _, id := range ids {
		attrs := points[id]
		md := domain.MeterMetadata{
			MeteringPointID: id,
			Name:            stringAttr(attrs, "name"),
			Type:            stringAttr(attrs, "type"),
			Location:        stringAttr(attrs, "location"),
			Description:     stringAttr(attrs, "description"),
		}
		if md.Name == "" {
			md.Name = id
		}
		for k, v := range attrs {
			if _, core := coreMetadataFields[k]; core {
				continue
			}
			if md.Extra == nil {
				md.Extra = make(map[string]any)
			}
			md.Extra[k] = v
		}
		out = append(out, md)
	}
	return out
}

func stringAttr(attrs map[string]any, key string) string {
	v, ok := attrs[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
