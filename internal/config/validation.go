package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/conneroisu/devlens/internal/logging"
	"github.com/conneroisu/devlens/internal/types"
	"github.com/conneroisu/devlens/internal/validation"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
			}
		}
		builder.WriteString("\n")
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, msg string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, msg string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateServerConfigDetails(&config.Server, result)
	validateTransformConfigDetails(&config.Transform, result)
	validateOverlayConfigDetails(&config.Overlay, config.Sites, result)
	validateStoreConfigDetails(&config.Store, result)
	validateSitesDetails(config.Sites, result)
	validateEditorConfigDetails(&config.Editor, result)
	validateLogConfigDetails(&config.Log, result)

	result.Valid = !result.HasErrors()
	return result
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.addError("server.port", config.Port,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Use a port between 1024-65535 for non-privileged access",
			"Port 0 allows the system to assign an available port")
	} else if config.Port > 0 && config.Port < 1024 {
		result.addWarning("server.port", config.Port,
			"port below 1024 requires elevated privileges",
			"Consider using a port above 1024 for development")
	}

	if config.Host != "" {
		if err := validation.ValidateHostname(config.Host); err != nil {
			result.addError("server.host", config.Host, err.Error(),
				"Use 'localhost' for local development",
				"Use '0.0.0.0' to bind to all interfaces")
		}
	}

	if config.Upstream != "" {
		if err := validation.ValidateURL(config.Upstream); err != nil {
			result.addError("server.upstream", config.Upstream, err.Error(),
				"Point this at the site's own dev server, e.g. http://localhost:4321")
		}
	}

	for _, origin := range config.AllowedOrigins {
		if origin == "*" {
			result.addWarning("server.allowed_origins", origin,
				"wildcard origin accepts websocket connections from any page")
		}
	}
}

func validateTransformConfigDetails(config *TransformConfig, result *ValidationResult) {
	for field, path := range map[string]string{
		"transform.src_dir": config.SrcDir,
		"transform.out_dir": config.OutDir,
	} {
		if err := validation.ValidatePath(path); err != nil {
			result.addError(field, path, err.Error())
		}
	}
	if config.SrcDir != "" && filepath.Clean(config.SrcDir) == filepath.Clean(config.OutDir) {
		result.addError("transform.out_dir", config.OutDir,
			"output directory must differ from the source directory",
			"Write transformed sources to a separate tree such as .devlens/src")
	}

	if config.ComponentsDir == "" || strings.ContainsAny(config.ComponentsDir, `/\`) {
		result.addError("transform.components_dir", config.ComponentsDir,
			"components_dir must be a single path segment")
	}
	if len(config.DataExtensions) == 0 {
		result.addError("transform.data_extensions", config.DataExtensions,
			"at least one data file extension is required")
	}
	for _, ext := range config.DataExtensions {
		if !strings.HasPrefix(ext, ".") {
			result.addError("transform.data_extensions", ext,
				fmt.Sprintf("extension %q must start with a dot", ext))
		}
	}
	if config.Debounce < 0 {
		result.addError("transform.debounce", config.Debounce, "debounce cannot be negative")
	}
}

func validateOverlayConfigDetails(config *OverlayConfig, sites []SiteConfig, result *ValidationResult) {
	mode, err := types.ParseMode(config.Mode)
	if err != nil {
		result.addError("overlay.mode", config.Mode, err.Error(),
			"Use 'standalone' for plain inspection",
			"Use 'embedded' when the site runs inside a host dashboard")
		return
	}
	if mode == types.ModeEmbedded && len(sites) == 0 {
		result.addWarning("overlay.mode", config.Mode,
			"embedded mode without configured sites cannot resolve a site; selections will be blocked",
			"Add a sites entry mapping a site id to its hostnames")
	}
}

func validateStoreConfigDetails(config *StoreConfig, result *ValidationResult) {
	switch config.Backend {
	case "fs":
		if err := validation.ValidatePath(config.Root); err != nil {
			result.addError("store.root", config.Root, err.Error())
		}
	case "s3":
		if config.S3.Bucket == "" {
			result.addError("store.s3.bucket", config.S3.Bucket, "bucket is required for the s3 backend")
		}
		if config.S3.Region == "" {
			result.addError("store.s3.region", config.S3.Region, "region is required for the s3 backend")
		}
		if config.S3.Endpoint != "" {
			if err := validation.ValidateURL(config.S3.Endpoint); err != nil {
				result.addError("store.s3.endpoint", config.S3.Endpoint, err.Error())
			}
		}
		if (config.S3.AccessKeyID == "") != (config.S3.SecretAccessKey == "") {
			result.addError("store.s3.access_key_id", config.S3.AccessKeyID,
				"access_key_id and secret_access_key must be set together")
		}
	default:
		result.addError("store.backend", config.Backend,
			fmt.Sprintf("unknown store backend %q", config.Backend),
			"Use 'fs' or 's3'")
	}

	if config.HistoryDB != "" && config.HistoryDB != ":memory:" {
		if err := validation.ValidatePath(config.HistoryDB); err != nil {
			result.addError("store.history_db", config.HistoryDB, err.Error())
		}
	}
	if err := validation.ValidatePath(config.PagesDir); err != nil {
		result.addError("store.pages_dir", config.PagesDir, err.Error())
	}
}

func validateSitesDetails(sites []SiteConfig, result *ValidationResult) {
	ids := make(map[string]bool)
	hosts := make(map[string]string)
	for i, site := range sites {
		field := fmt.Sprintf("sites[%d]", i)
		if err := validation.ValidateSiteID(site.ID); err != nil {
			result.addError(field+".id", site.ID, err.Error())
			continue
		}
		if ids[site.ID] {
			result.addError(field+".id", site.ID, fmt.Sprintf("duplicate site id %q", site.ID))
		}
		ids[site.ID] = true

		for _, host := range site.Hosts {
			host = strings.ToLower(host)
			if err := validation.ValidateHostname(host); err != nil {
				result.addError(field+".hosts", host, err.Error(),
					"List bare hostnames without scheme or port")
				continue
			}
			if owner, ok := hosts[host]; ok && owner != site.ID {
				result.addError(field+".hosts", host,
					fmt.Sprintf("host %q is already mapped to site %q", host, owner))
			}
			hosts[host] = site.ID
		}
	}
}

func validateEditorConfigDetails(config *EditorConfig, result *ValidationResult) {
	if config.BaseURL == "" {
		return
	}
	if err := validation.ValidateURL(config.BaseURL); err != nil {
		result.addError("editor.base_url", config.BaseURL, err.Error())
	}
}

func validateLogConfigDetails(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.addError("log.level", config.Level, err.Error(),
			"Use one of debug, info, warn, error")
	}
	if config.Format != "text" && config.Format != "json" {
		result.addError("log.format", config.Format,
			fmt.Sprintf("unknown log format %q", config.Format),
			"Use 'text' or 'json'")
	}
}
