package services

import (
	"autoservice/internal/models"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

// CoerceOption converts value into the Go type of the descriptor's kind and
// validates it against the descriptor's constraints.
// JSON numbers arrive as float64 and are accepted for int options only when integral.
func CoerceOption(desc models.OptionDescriptor, value any) (any, error) {
	switch desc.Kind {
	case models.OptionBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: expected bool, got %q", ErrInvalidOption, desc.Key, v)
			}
			return b, nil
		}
		return nil, fmt.Errorf("%w: %s: expected bool, got %T", ErrInvalidOption, desc.Key, value)

	case models.OptionInt:
		var n int
		switch v := value.(type) {
		case int:
			n = v
		case int64:
			n = int(v)
		case float64:
			if v != math.Trunc(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: %s: expected integer, got %v", ErrInvalidOption, desc.Key, v)
			}
			n = int(v)
		case string:
			parsed, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("%w: %s: expected integer, got %q", ErrInvalidOption, desc.Key, v)
			}
			n = parsed
		default:
			return nil, fmt.Errorf("%w: %s: expected integer, got %T", ErrInvalidOption, desc.Key, value)
		}
		if n < desc.Min || n > desc.Max {
			return nil, fmt.Errorf("%w: %s: %d outside [%d, %d]", ErrInvalidOption, desc.Key, n, desc.Min, desc.Max)
		}
		return n, nil

	case models.OptionSelect:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s: expected string, got %T", ErrInvalidOption, desc.Key, value)
		}
		if !slices.Contains(desc.Choices, s) {
			return nil, fmt.Errorf("%w: %s: %q not one of %v", ErrInvalidOption, desc.Key, s, desc.Choices)
		}
		return s, nil

	case models.OptionText:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s: expected string, got %T", ErrInvalidOption, desc.Key, value)
		}
		if desc.MaxLength > 0 && utf8.RuneCountInString(s) > desc.MaxLength {
			return nil, fmt.Errorf("%w: %s: longer than %d characters", ErrInvalidOption, desc.Key, desc.MaxLength)
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidOption, desc.Key, desc.Kind)
}

// ApplyOptions layers overrides on top of base. Every key in overrides must
// exist in schema; values are coerced and validated.
func ApplyOptions(schema models.OptionSchema, base, overrides models.OptionValues) (models.OptionValues, error) {
	out := base.Clone()
	for key, raw := range overrides {
		desc, ok := schema.Lookup(key)
		if !ok {
			return nil, fmt.Errorf("%w: unknown option %q", ErrInvalidOption, key)
		}
		v, err := CoerceOption(desc, raw)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// DefaultOptions returns the schema defaults, validated against the schema itself
func DefaultOptions(schema models.OptionSchema) (models.OptionValues, error) {
	out := make(models.OptionValues, len(schema))
	for _, desc := range schema {
		v, err := CoerceOption(desc, desc.Default)
		if err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
		out[desc.Key] = v
	}
	return out, nil
}
