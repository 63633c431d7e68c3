package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/flood-trigger-service/internal/domain"
)

type countriesFile struct {
	Countries []domain.CountryConfig `yaml:"countries" validate:"required,min=1,dive"`
}

// LoadCountries reads and validates the country/basin configuration file.
func LoadCountries(path string) ([]domain.CountryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read countries file: %w", err)
	}
	return ParseCountries(data)
}

// ParseCountries decodes a countries document, fills defaults and validates it.
// Unknown keys are rejected.
func ParseCountries(data []byte) ([]domain.CountryConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f countriesFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse countries file: %w", err)
	}

	for i := range f.Countries {
		applyDefaults(&f.Countries[i])
	}

	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("invalid countries file: %w", describe(err))
	}
	if err := checkUnique(f.Countries); err != nil {
		return nil, err
	}
	if err := checkReturnPeriods(f.Countries); err != nil {
		return nil, err
	}
	return f.Countries, nil
}

func applyDefaults(c *domain.CountryConfig) {
	if c.Rule == "" {
		c.Rule = domain.ActivationAnyBasin
	}
	for i := range c.Basins {
		if c.Basins[i].Tiers == "" {
			c.Basins[i].Tiers = domain.TierFixed
		}
	}
}

func checkUnique(countries []domain.CountryConfig) error {
	codes := make(map[string]bool, len(countries))
	for _, c := range countries {
		if codes[c.Code] {
			return fmt.Errorf("duplicate country code %q", c.Code)
		}
		codes[c.Code] = true

		basins := make(map[string]bool, len(c.Basins))
		stations := make(map[string]bool)
		for _, b := range c.Basins {
			if basins[b.ID] {
				return fmt.Errorf("country %s: duplicate basin %q", c.Code, b.ID)
			}
			basins[b.ID] = true
			for _, s := range b.Stations() {
				if stations[s.ID] {
					return fmt.Errorf("country %s: duplicate station %q", c.Code, s.ID)
				}
				stations[s.ID] = true
			}
		}
	}
	return nil
}

// checkReturnPeriods rejects periods that threshold file names cannot carry.
func checkReturnPeriods(countries []domain.CountryConfig) error {
	for _, c := range countries {
		for _, b := range c.Basins {
			if _, err := domain.ReturnPeriodLabel(b.Policy.ReturnPeriod); err != nil {
				return fmt.Errorf("country %s basin %s: %w", c.Code, b.ID, err)
			}
		}
	}
	return nil
}

// describe flattens validator errors into one message naming each failing field.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Errorf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return errors.Join(msgs...)
}
