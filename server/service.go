package server

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/nodelog/slogd/client"
	"github.com/nodelog/slogd/conf"
	"github.com/nodelog/slogd/data"
	"github.com/nodelog/slogd/firmware"
	"github.com/nodelog/slogd/level"
	"github.com/nodelog/slogd/notify"
	"github.com/nodelog/slogd/shm"
)

var (
	requestsTotal = metrics.NewCounter("slogd_requests_total")
	requestErrors = metrics.NewCounter("slogd_request_errors_total")
	publishErrors = metrics.NewCounter("slogd_publish_errors_total")
)

// modulesPerLine wraps the [module] section of the verbose listing
const modulesPerLine = 5

// ServiceParams are the collaborators of a Service
type ServiceParams struct {
	Store *level.Store
	// Conf may be nil when the instance has no config file
	Conf     *conf.File
	Pub      *shm.Publisher
	Signal   notify.Signal
	Firmware *firmware.Propagator
	// Client refreshes Store from shared memory on VF instances
	Client *client.LevelClient
	Debug  bool
}

// Service answers level commands. A set request updates the store, then
// the config file, shared memory, the change signal and firmware. Steps
// are not rolled back when a later one fails. Only the master accepts set
// requests; a VF instance serves gets from the published snapshot.
type Service struct {
	ServiceParams
	lock sync.Mutex
}

// NewService returns a service. A nil Firmware is replaced with a no-op
// propagator.
func NewService(p ServiceParams) *Service {
	if p.Firmware == nil {
		p.Firmware = firmware.NewPropagator(nil, p.Store)
	}
	return &Service{ServiceParams: p}
}

func (s *Service) master() bool {
	return s.Pub.IsMaster()
}

// first collects the first error of a cascade and logs the rest
type first struct {
	err error
}

func (f *first) add(step string, err error) {
	if err == nil {
		return
	}
	log.Printf("Error %v: %v", step, err)
	if f.err == nil {
		f.err = err
	}
}

// Publish pushes the store to shared memory and signals readers
func (s *Service) Publish() error {
	if err := s.Pub.PublishLevels(level.EncodeStore(s.Store)); err != nil {
		publishErrors.Inc()
		return err
	}
	s.Store.ClearDirty()

	if err := s.Signal.Publish(); err != nil {
		publishErrors.Inc()
		return err
	}
	return nil
}

// Init loads the starting state: the config file on the master, the
// published snapshot on a VF. initLevel, if valid, then overrides the global
// level.
func (s *Service) Init(initLevel data.Severity) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	var f first
	f.add("loading levels", s.load())

	if initLevel.Valid() {
		log.Println("Setting initial global level: ", initLevel)
		s.Store.SetGlobal(initLevel)
	}

	f.add("publishing levels", s.Publish())
	if s.master() {
		f.add("pushing firmware levels", s.Firmware.Propagate(data.AllDevices))
	}
	return f.err
}

// Reload re-reads the config file and republishes everything
func (s *Service) Reload() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	var f first
	f.add("reloading levels", s.load())
	f.add("publishing levels", s.Publish())
	if s.master() {
		f.add("pushing firmware levels", s.Firmware.Propagate(data.AllDevices))
	}
	return f.err
}

func (s *Service) load() error {
	if !s.master() && s.Client != nil {
		return s.Client.Refresh()
	}
	if s.Conf == nil {
		return nil
	}
	return s.Conf.Reconcile(s.Store)
}

func (s *Service) setKey(key string, digit int) error {
	if s.Conf == nil {
		return nil
	}
	return s.Conf.SetKey(key, digit)
}

// Dispatch handles one request and returns the reply
func (s *Service) Dispatch(req data.LevelMsg) data.LevelMsg {
	requestsTotal.Inc()

	payload := strings.TrimSpace(req.Payload)
	if s.Debug {
		log.Printf("Level request, dev: %v, payload: %v", req.DevID, payload)
	}

	var reply string
	var err error

	switch {
	case payload == data.CmdGetLogLevelTableFormat:
		reply = s.get(req.DevID, true)
	case payload == data.CmdGetLogLevel:
		reply = s.get(req.DevID, false)
	case strings.HasPrefix(payload, data.CmdSetLogLevel):
		err = s.set(req.DevID, payload)
		reply = data.ReplyString(err, data.ReplySuccess)
	default:
		err = fmt.Errorf("%w: unknown command %q", data.ErrLevelSyntax, payload)
		reply = data.ReplyString(err, "")
	}

	if err != nil {
		requestErrors.Inc()
		log.Println("Level request failed: ", err)
	}

	return data.LevelMsg{
		Type:    data.MsgTypeFeedback,
		DevID:   req.DevID,
		Payload: reply,
	}
}

func (s *Service) get(devID int32, table bool) string {
	if !s.master() && s.Client != nil {
		if err := s.Client.Refresh(); err != nil {
			log.Println("Error refreshing levels for get: ", err)
		}
	}

	global := s.Store.GetGlobal(data.ChannelDiagnostic)
	event := data.EventName(s.Store.GetEventEnabled())
	mods := s.Store.Registry().Modules()

	var b strings.Builder
	if table {
		fmt.Fprintf(&b, "Global:%v,Event:%v,", global, event)
		for _, m := range mods {
			fmt.Fprintf(&b, "%v:%v,", m.Name, s.Store.GetModuleForDevice(m.ID, devID, data.ChannelDiagnostic))
		}
		return b.String()
	}

	fmt.Fprintf(&b, "[global]\n%v\n[event]\n%v\n[module]\n", global, event)
	for i, m := range mods {
		fmt.Fprintf(&b, "%v:%v ", m.Name, s.Store.GetModuleForDevice(m.ID, devID, data.ChannelDiagnostic))
		if (i+1)%modulesPerLine == 0 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// parseSet splits "SetLogLevel(<scope>)[<value>]"
func parseSet(payload string) (int, string, error) {
	rest := strings.TrimPrefix(payload, data.CmdSetLogLevel)

	if len(rest) < 3 || rest[0] != '(' {
		return 0, "", fmt.Errorf("%w: %q", data.ErrLevelSyntax, payload)
	}
	end := strings.IndexByte(rest, ')')
	if end < 0 {
		return 0, "", fmt.Errorf("%w: %q", data.ErrLevelSyntax, payload)
	}
	scope, err := strconv.Atoi(rest[1:end])
	if err != nil {
		return 0, "", fmt.Errorf("%w: scope in %q", data.ErrLevelSyntax, payload)
	}

	rest = rest[end+1:]
	if len(rest) < 2 || rest[0] != '[' || rest[len(rest)-1] != ']' {
		return 0, "", fmt.Errorf("%w: value in %q", data.ErrLevelSyntax, payload)
	}

	value := strings.ToUpper(strings.TrimSpace(rest[1 : len(rest)-1]))
	if value == "" {
		return 0, "", fmt.Errorf("%w: empty value in %q", data.ErrLevelSyntax, payload)
	}

	return scope, value, nil
}

func (s *Service) set(devID int32, payload string) error {
	// only the master owns the config file and shared memory
	if !s.master() {
		return fmt.Errorf("%w: device %v instance does not accept level settings", data.ErrNotMaster, s.Pub.DevID())
	}

	scope, value, err := parseSet(payload)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	switch scope {
	case data.ScopeGlobal:
		return s.setGlobal(devID, value)
	case data.ScopeModule:
		return s.setModule(devID, value)
	case data.ScopeEvent:
		return s.setEvent(value)
	default:
		return fmt.Errorf("%w: scope %v", data.ErrLevelSyntax, scope)
	}
}

func (s *Service) setGlobal(devID int32, value string) error {
	sev, ok := data.ParseSeverity(value)
	if !ok {
		return fmt.Errorf("%w: level %q", data.ErrLevelSyntax, value)
	}

	cascaded := s.Store.SetGlobal(sev)

	var f first
	f.add("writing global level", s.setKey(conf.KeyGlobalLevel, int(sev)))
	for _, id := range cascaded {
		m, _ := s.Store.Registry().Module(id)
		f.add("writing module level", s.setKey(m.Name, int(sev)))
	}
	f.add("publishing levels", s.Publish())
	f.add("pushing firmware levels", s.Firmware.Propagate(devID))
	return f.err
}

func (s *Service) setModule(devID int32, value string) error {
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return fmt.Errorf("%w: module setting %q", data.ErrLevelSyntax, value)
	}

	m, ok := s.Store.Registry().ByName(strings.TrimSpace(parts[0]))
	if !ok {
		return fmt.Errorf("%w: unknown module %q", data.ErrLevelSyntax, parts[0])
	}

	sev, ok := data.ParseSeverity(parts[1])
	if !ok {
		return fmt.Errorf("%w: level %q", data.ErrLevelSyntax, parts[1])
	}

	var f first

	if m.PerDevice {
		if err := s.Store.SetModuleForDevice(m.ID, devID, sev); err != nil {
			return fmt.Errorf("%w: %v", data.ErrLevelSyntax, err)
		}
		f.add("pushing firmware levels", s.Firmware.Propagate(devID))
		// the config file has one value per module, only meaningful when
		// there is a single device
		if s.Firmware.OnlyOneDevice() {
			f.add("writing module level", s.setKey(m.Name, int(sev)))
		}
		f.add("publishing levels", s.Publish())
		return f.err
	}

	if err := s.Store.SetModule(m.ID, sev); err != nil {
		return fmt.Errorf("%w: %v", data.ErrLevelSyntax, err)
	}
	f.add("writing module level", s.setKey(m.Name, int(sev)))
	f.add("publishing levels", s.Publish())
	return f.err
}

func (s *Service) setEvent(value string) error {
	enabled, ok := data.ParseEvent(value)
	if !ok {
		return fmt.Errorf("%w: event %q", data.ErrLevelSyntax, value)
	}

	s.Store.SetEventEnabled(enabled)

	digit := 0
	if enabled {
		digit = 1
	}

	var f first
	f.add("writing event setting", s.setKey(conf.KeyEnableEvent, digit))
	f.add("publishing levels", s.Publish())
	return f.err
}
