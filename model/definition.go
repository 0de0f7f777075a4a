package model

// DomainDefinition is the root structure of a definition file. Each file
// declares one department's workflow templates and approval gates.
type DomainDefinition struct {
	Domain    string             `yaml:"domain"    json:"domain"`
	Version   string             `yaml:"version"   json:"version"`
	Workflows []WorkflowTemplate `yaml:"workflows" json:"workflows,omitempty"`
	Gates     []GateDefinition   `yaml:"gates"     json:"gates,omitempty"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// GateDefinition parameterises one approval decision point.
type GateDefinition struct {
	ID              string   `yaml:"id"               json:"id"`
	Name            string   `yaml:"name"             json:"name"`
	Machine         string   `yaml:"machine"          json:"machine"`
	Capability      string   `yaml:"capability"       json:"capability"`
	From            []string `yaml:"from"             json:"from"`
	OnApprove       string   `yaml:"on_approve"       json:"on_approve"`
	OnReject        string   `yaml:"on_reject"        json:"on_reject"`
	RequireEstimate bool     `yaml:"require_estimate" json:"require_estimate"`
	Visibility      string   `yaml:"visibility"       json:"visibility,omitempty"`
	Label           string   `yaml:"label"            json:"label,omitempty"`
}

// Machine names referenced by gate definitions.
const (
	MachineProtocol = "protocol"
	MachineTFD      = "tfd"
)

// MachineByName resolves a gate machine name.
func MachineByName(name string) (*StatusMachine, bool) {
	switch name {
	case MachineProtocol:
		return ProtocolMachine, true
	case MachineTFD:
		return TFDMachine, true
	default:
		return nil, false
	}
}
