package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const selfBinary = "lunar-mcp"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their YAML names.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// Validate checks every field against its constraints and returns an
// *InvalidConfigError naming the offending fields.
func (c *Config) Validate() error {
	var fields []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("failed to validate config: %w", err)
		}
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fieldPath(fe.Namespace()), fe.Tag()))
		}
	}

	for i, tool := range c.Tools {
		if strings.TrimSpace(tool.Name) == "" {
			fields = append(fields, fmt.Sprintf("tools[%d].name (required)", i))
		}
	}
	for name, server := range c.Servers {
		if server != nil && IsSelfReference(server) {
			fields = append(fields, fmt.Sprintf("servers[%s] (self-reference)", name))
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return &InvalidConfigError{
		Message: "validation failed",
		Fields:  fields,
		Hint:    hintFixFields,
	}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

// IsSelfReference checks if a server config launches lunar-mcp itself.
// Running a chain step on such a server would recurse.
func IsSelfReference(server *ServerConfig) bool {
	binaryName := filepath.Base(os.Args[0])
	command := filepath.Base(server.Command)
	if command == binaryName || command == selfBinary {
		return true
	}

	if command == "npx" {
		for _, arg := range server.Args {
			if arg == "@khanglvm/"+selfBinary || arg == selfBinary {
				return true
			}
		}
	}

	return false
}

// ValidateServer checks that a server config can be spawned.
func ValidateServer(name string, server *ServerConfig) error {
	if server == nil || server.Command == "" {
		return fmt.Errorf("server '%s': empty command", name)
	}

	if IsSelfReference(server) {
		return fmt.Errorf("server '%s': self-reference detected (lunar-mcp cannot run itself as a step server)", name)
	}

	return nil
}
