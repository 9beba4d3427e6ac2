package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/rbright/voxd/internal/backend"
	"github.com/rbright/voxd/internal/history"
	"github.com/rbright/voxd/internal/router"
)

var (
	structValidator *validator.Validate
	validatorOnce   sync.Once
)

func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		structValidator = validator.New(validator.WithRequiredStructEnabled())
		structValidator.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "" || name == "-" {
				return strings.ToLower(fld.Name)
			}
			return name
		})
	})
	return structValidator
}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	if err := validateStruct(cfg); err != nil {
		return nil, err
	}
	if err := cfg.RouterConfig().Validate(); err != nil {
		return nil, err
	}
	if _, err := history.ParseLevel(cfg.Privacy.Level); err != nil {
		return nil, fmt.Errorf("privacy.level: %w", err)
	}
	if len(cfg.Clipboard.Argv) == 0 {
		return nil, fmt.Errorf("clipboard_cmd must not be empty")
	}
	if cfg.Paste.Enable && len(cfg.Paste.Cmd.Argv) == 0 {
		return nil, fmt.Errorf("paste.cmd must not be empty when paste.enable=true")
	}

	warnings := make([]Warning, 0)
	if strings.TrimSpace(cfg.Control.Token) == "" {
		warnings = append(warnings, Warning{Message: "control.token is empty; socket control rejects every request"})
	}
	if strings.TrimSpace(cfg.Routing.Local.ModelID) == "" {
		warnings = append(warnings, Warning{Message: "routing.local.model_id is empty; transformation is unavailable"})
	}
	if len(cfg.Selection.Cmd.Argv) == 0 {
		warnings = append(warnings, Warning{Message: "selection.cmd is empty; refine and question modes see no selection"})
	}
	if strings.TrimSpace(cfg.Notes.Path) == "" {
		warnings = append(warnings, Warning{Message: "notes.path is empty; note mode is disabled"})
	}
	if cfg.Routing.Mode == router.RoutingRemote {
		warnings = append(warnings, missingCredentialWarnings(cfg)...)
	}
	return warnings, nil
}

func validateStruct(cfg Config) error {
	err := getValidator().Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, fieldPath(fe.Namespace())+" "+describeTag(fe))
	}
	return errors.New(strings.Join(messages, "; "))
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "url":
		return "must be a URL"
	case "hostname_port":
		return "must be host:port"
	case "gte":
		return "must be >= " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

func missingCredentialWarnings(cfg Config) []Warning {
	seen := make(map[backend.Provider]struct{})
	for _, route := range cfg.Routing.Remote {
		if route.Provider.Remote() {
			seen[route.Provider] = struct{}{}
		}
	}
	providers := make([]string, 0, len(seen))
	for p := range seen {
		if strings.TrimSpace(cfg.Credentials[p]) == "" {
			providers = append(providers, string(p))
		}
	}
	sort.Strings(providers)

	warnings := make([]Warning, 0, len(providers))
	for _, p := range providers {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("no credential for provider %s; its routes use the local model", p)})
	}
	return warnings
}
