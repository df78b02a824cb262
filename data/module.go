package data

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// Module groups
const (
	GroupHost     = 0
	GroupFirmware = 1
	GroupMDC      = 2
)

// Registry limits
const (
	MaxModules       = 1022
	MaxModuleNameLen = 32
	// MaxDevices is the size of the per device level array
	MaxDevices = 64
	// AllDevices is the device id used to address every device. A daemon
	// started with this id is the master instance.
	AllDevices int32 = -1
)

// ModuleDescriptor describes one loggable software or firmware component
type ModuleDescriptor struct {
	ID        int    `yaml:"-"`
	Name      string `yaml:"name"`
	PerDevice bool   `yaml:"perDevice"`
	Group     int    `yaml:"group"`
}

// Registry is the static module catalog. Module IDs are the position in
// the catalog and are also the byte position in the level snapshot, so all
// processes on a node must share the same registry.
type Registry struct {
	modules []ModuleDescriptor
	byName  map[string]int
}

// NewRegistry builds a registry from descriptors in catalog order. The ID
// field of each descriptor is overwritten with its position.
func NewRegistry(mods []ModuleDescriptor) (*Registry, error) {
	if len(mods) == 0 {
		return nil, fmt.Errorf("module catalog is empty")
	}

	if len(mods) > MaxModules {
		return nil, fmt.Errorf("too many modules: %v, max: %v", len(mods), MaxModules)
	}

	r := &Registry{
		modules: make([]ModuleDescriptor, len(mods)),
		byName:  make(map[string]int, len(mods)),
	}

	for i, m := range mods {
		name := strings.ToUpper(strings.TrimSpace(m.Name))
		if name == "" || len(name) > MaxModuleNameLen {
			return nil, fmt.Errorf("invalid module name at index %v: %q", i, m.Name)
		}
		if strings.ContainsAny(name, ";:,=#[] \t\r\n") {
			return nil, fmt.Errorf("module name contains reserved characters: %q", m.Name)
		}
		if _, ok := r.byName[name]; ok {
			return nil, fmt.Errorf("duplicate module name: %v", name)
		}
		m.ID = i
		m.Name = name
		r.modules[i] = m
		r.byName[name] = i
	}

	return r, nil
}

type catalogFile struct {
	Modules []ModuleDescriptor `yaml:"modules"`
}

// LoadRegistry reads a YAML module catalog:
//
//	modules:
//	  - {name: SLOG}
//	  - {name: TS, perDevice: true, group: 1}
func LoadRegistry(path string) (*Registry, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Error reading module catalog: %w", err)
	}

	var c catalogFile
	if err := yaml.Unmarshal(buf, &c); err != nil {
		return nil, fmt.Errorf("Error parsing module catalog %v: %w", path, err)
	}

	return NewRegistry(c.Modules)
}

// Count returns the number of modules
func (r *Registry) Count() int {
	return len(r.modules)
}

// Valid returns true if id lies in [0, Count())
func (r *Registry) Valid(id int) bool {
	return id >= 0 && id < len(r.modules)
}

// Module returns the descriptor for id
func (r *Registry) Module(id int) (ModuleDescriptor, bool) {
	if !r.Valid(id) {
		return ModuleDescriptor{}, false
	}
	return r.modules[id], true
}

// ByName looks up a module by name (case insensitive)
func (r *Registry) ByName(name string) (ModuleDescriptor, bool) {
	id, ok := r.byName[strings.ToUpper(name)]
	if !ok {
		return ModuleDescriptor{}, false
	}
	return r.modules[id], true
}

// Modules returns a copy of the catalog in ID order
func (r *Registry) Modules() []ModuleDescriptor {
	ret := make([]ModuleDescriptor, len(r.modules))
	copy(ret, r.modules)
	return ret
}

// Names returns module names in ID order
func (r *Registry) Names() []string {
	ret := make([]string, len(r.modules))
	for i, m := range r.modules {
		ret[i] = m.Name
	}
	return ret
}

// Catalog returns the ';' terminated name list published to shared memory,
// for example "SLOG;IDEDD;IDEDH;"
func (r *Registry) Catalog() string {
	var b strings.Builder
	for _, m := range r.modules {
		b.WriteString(m.Name)
		b.WriteByte(';')
	}
	return b.String()
}

// ParseCatalog splits a published catalog into names
func ParseCatalog(s string) []string {
	s = strings.TrimSuffix(s, ";")
	if s == "" {
		return nil
	}
	return strings.Split(s, ";")
}

var defaultModules = []ModuleDescriptor{
	{Name: "SLOG"},
	{Name: "IDEDD"},
	{Name: "IDEDH"},
	{Name: "HCCL"},
	{Name: "FMK"},
	{Name: "HIAIENGINE"},
	{Name: "DVPP"},
	{Name: "RUNTIME"},
	{Name: "CCE"},
	{Name: "HDC"},
	{Name: "DRV"},
	{Name: "MDCFUSION", Group: GroupMDC},
	{Name: "MDCLOCATION", Group: GroupMDC},
	{Name: "MDCPERCEPTION", Group: GroupMDC},
	{Name: "MDCFSM", Group: GroupMDC},
	{Name: "MDCCOMMON", Group: GroupMDC},
	{Name: "MDCMONITOR", Group: GroupMDC},
	{Name: "MDCBSWP", Group: GroupMDC},
	{Name: "MDCDEFAULT", Group: GroupMDC},
	{Name: "MDCSC", Group: GroupMDC},
	{Name: "MDCPNC", Group: GroupMDC},
	{Name: "MLL"},
	{Name: "DEVMM"},
	{Name: "KERNEL"},
	{Name: "LIBMEDIA"},
	{Name: "CCECPU"},
	{Name: "ASCENDDK"},
	{Name: "ROS"},
	{Name: "HCCP"},
	{Name: "ROCE"},
	{Name: "TEFUSION"},
	{Name: "PROFILING"},
	{Name: "DP"},
	{Name: "APP"},
	{Name: "TS", PerDevice: true, Group: GroupFirmware},
	{Name: "TSDUMP", PerDevice: true, Group: GroupFirmware},
	{Name: "AICPU"},
	{Name: "LP", PerDevice: true, Group: GroupFirmware},
	{Name: "TDT"},
	{Name: "FE"},
	{Name: "MD"},
	{Name: "MB"},
	{Name: "ME"},
	{Name: "IMU", PerDevice: true, Group: GroupFirmware},
	{Name: "IMP"},
	{Name: "GE"},
	{Name: "CAMERA"},
	{Name: "ASCENDCL"},
	{Name: "TEEOS"},
	{Name: "ISP", PerDevice: true, Group: GroupFirmware},
	{Name: "SIS", PerDevice: true, Group: GroupFirmware},
	{Name: "HSM", PerDevice: true, Group: GroupFirmware},
	{Name: "DSS"},
	{Name: "PROCMGR"},
	{Name: "BBOX"},
	{Name: "AIVECTOR"},
	{Name: "TBE"},
	{Name: "FV"},
}

// DefaultRegistry returns the compiled-in module catalog
func DefaultRegistry() *Registry {
	r, err := NewRegistry(defaultModules)
	if err != nil {
		// the compiled-in table is static, so this is a programming error
		panic(err)
	}
	return r
}
