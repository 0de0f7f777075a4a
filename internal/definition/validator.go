package definition

import (
	"fmt"
	"strings"

	"github.com/pitabwire/digiurban/model"
)

// VError describes a single validation error in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator validates definitions structurally and across files.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all definitions. Module types and gate IDs must be unique
// across the whole set.
func (v *Validator) Validate(defs []model.DomainDefinition) []VError {
	var errs []VError
	moduleTypes := make(map[string]string)
	gateIDs := make(map[string]string)

	for i, def := range defs {
		prefix := fmt.Sprintf("definitions[%d]", i)
		if def.SourceFile != "" {
			prefix = def.SourceFile
		}
		errs = append(errs, v.validateDomain(prefix, def)...)

		for j, w := range def.Workflows {
			if w.ModuleType == "" {
				continue
			}
			if other, dup := moduleTypes[w.ModuleType]; dup {
				errs = append(errs, VError{
					Path:    fmt.Sprintf("%s.workflows[%d].module_type", prefix, j),
					Code:    "DUPLICATE",
					Message: fmt.Sprintf("module type %q already defined in %s", w.ModuleType, other),
				})
				continue
			}
			moduleTypes[w.ModuleType] = prefix
		}
		for j, g := range def.Gates {
			if g.ID == "" {
				continue
			}
			if other, dup := gateIDs[g.ID]; dup {
				errs = append(errs, VError{
					Path:    fmt.Sprintf("%s.gates[%d].id", prefix, j),
					Code:    "DUPLICATE",
					Message: fmt.Sprintf("gate %q already defined in %s", g.ID, other),
				})
				continue
			}
			gateIDs[g.ID] = prefix
		}
	}
	return errs
}

func (v *Validator) validateDomain(prefix string, def model.DomainDefinition) []VError {
	var errs []VError

	if def.Domain == "" {
		errs = append(errs, VError{Path: prefix + ".domain", Code: "REQUIRED", Message: "domain is required"})
	}
	if def.Version == "" {
		errs = append(errs, VError{Path: prefix + ".version", Code: "REQUIRED", Message: "version is required"})
	}
	for i, w := range def.Workflows {
		wp := fmt.Sprintf("%s.workflows[%d]", prefix, i)
		for _, fe := range w.Validate() {
			errs = append(errs, VError{Path: wp + "." + fe.Field, Code: fe.Code, Message: fe.Message})
		}
	}
	for i, g := range def.Gates {
		gp := fmt.Sprintf("%s.gates[%d]", prefix, i)
		errs = append(errs, v.validateGate(gp, g)...)
	}
	return errs
}

var validVisibility = map[string]bool{
	"": true, model.VisibilityPublic: true, model.VisibilityInternal: true, model.VisibilityPrivate: true,
}

func (v *Validator) validateGate(prefix string, g model.GateDefinition) []VError {
	var errs []VError

	if g.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if g.Capability == "" {
		errs = append(errs, VError{Path: prefix + ".capability", Code: "REQUIRED", Message: "capability is required"})
	} else if strings.ContainsAny(g.Capability, " \t") {
		errs = append(errs, VError{Path: prefix + ".capability", Code: "INVALID", Message: "capability must not contain spaces"})
	}
	if !validVisibility[g.Visibility] {
		errs = append(errs, VError{Path: prefix + ".visibility", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid visibility %q", g.Visibility)})
	}

	machine, ok := model.MachineByName(g.Machine)
	if !ok {
		errs = append(errs, VError{Path: prefix + ".machine", Code: "INVALID_ENUM", Message: fmt.Sprintf("unknown machine %q", g.Machine)})
		return errs
	}

	if len(g.From) == 0 {
		errs = append(errs, VError{Path: prefix + ".from", Code: "REQUIRED", Message: "at least one from status is required"})
	}
	for j, s := range g.From {
		if !machine.Valid(s) {
			errs = append(errs, VError{Path: fmt.Sprintf("%s.from[%d]", prefix, j), Code: "INVALID_STATUS", Message: fmt.Sprintf("status %q is not part of machine %q", s, g.Machine)})
		} else if machine.IsTerminal(s) {
			errs = append(errs, VError{Path: fmt.Sprintf("%s.from[%d]", prefix, j), Code: "TERMINAL_STATUS", Message: fmt.Sprintf("gate cannot start from terminal status %q", s)})
		}
	}
	targets := []struct{ field, status string }{{"on_approve", g.OnApprove}, {"on_reject", g.OnReject}}
	for _, t := range targets {
		field, s := t.field, t.status
		switch {
		case s == "":
			errs = append(errs, VError{Path: prefix + "." + field, Code: "REQUIRED", Message: field + " is required"})
		case !machine.Valid(s):
			errs = append(errs, VError{Path: prefix + "." + field, Code: "INVALID_STATUS", Message: fmt.Sprintf("status %q is not part of machine %q", s, g.Machine)})
		}
	}
	return errs
}
