package guard

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Device maps a printer's serial number to the name used in the Logs sheet.
type Device struct {
	Serial string `yaml:"serial"`
	Name   string `yaml:"name"`
}

// Registry resolves device serials to display names.
type Registry struct {
	Devices []Device `yaml:"devices"`

	bySerial map[string]string
}

// LoadRegistry reads a YAML device registry:
//
//	devices:
//	  - serial: 01P00A123456789
//	    name: Printer 1
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "guard: read registry %s", path)
	}
	return ParseRegistry(data)
}

// ParseRegistry parses registry YAML. Every entry needs a serial and a name.
func ParseRegistry(data []byte) (*Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "guard: parse registry")
	}
	r.bySerial = make(map[string]string, len(r.Devices))
	for i, d := range r.Devices {
		serial, name := strings.TrimSpace(d.Serial), strings.TrimSpace(d.Name)
		if serial == "" || name == "" {
			return nil, eris.Errorf("guard: registry entry %d needs serial and name", i)
		}
		key := strings.ToUpper(serial)
		if _, dup := r.bySerial[key]; dup {
			return nil, eris.Errorf("guard: duplicate serial %s", serial)
		}
		r.bySerial[key] = name
	}
	return &r, nil
}

// Name returns the display name for a serial, or the input unchanged when it
// is not a registered serial. A nil Registry passes everything through.
func (r *Registry) Name(device string) string {
	device = strings.TrimSpace(device)
	if r == nil {
		return device
	}
	if name, ok := r.bySerial[strings.ToUpper(device)]; ok {
		return name
	}
	return device
}

// Serials lists the registered serials in file order.
func (r *Registry) Serials() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Devices))
	for _, d := range r.Devices {
		out = append(out, strings.TrimSpace(d.Serial))
	}
	return out
}
