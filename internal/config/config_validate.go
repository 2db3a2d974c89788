package config

import (
	"fmt"

	"visitor-forecast/internal/model"
	"visitor-forecast/internal/validation"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}
	return ValidateRunSpec(c.Run)
}

// ValidateRunSpec checks a run spec, including the cross-field rules the struct tags cannot express
func ValidateRunSpec(spec model.RunSpec) error {
	if err := validation.ValidateStruct(&spec); err != nil {
		return err
	}

	if err := validateSources(spec); err != nil {
		return err
	}

	if spec.Forecast.Enabled && !spec.HasMode(spec.Forecast.Mode) {
		return fmt.Errorf("forecast.mode %q is not one of the trained framer.modes %v", spec.Forecast.Mode, spec.Framer.Modes)
	}

	if spec.HasMode(model.ModeMultivariate) && spec.Framer.Lookback != 1 {
		return fmt.Errorf("framer.lookback must be 1 in multivariate mode, got %d", spec.Framer.Lookback)
	}
	return nil
}

// validateSources checks the optional sources that depend on each other
func validateSources(spec model.RunSpec) error {
	s := spec.Sources
	if s.HPGReserve != "" && s.StoreIDRelation == "" {
		return fmt.Errorf("sources.store_id_relation is required when sources.hpg_reserve is set")
	}
	if spec.Features.HPGMetadataFallback && (s.HPGStoreInfo == "" || s.StoreIDRelation == "") {
		return fmt.Errorf("features.hpg_metadata_fallback needs sources.hpg_store_info and sources.store_id_relation")
	}
	if spec.Features.IncludeHoliday && s.DateInfo == "" {
		return fmt.Errorf("features.include_holiday needs sources.date_info")
	}
	return nil
}
