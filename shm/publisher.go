package shm

import (
	"bytes"
	"encoding/binary"
	"log"
	"os"
	"strings"

	"github.com/blang/semver/v4"
	"github.com/nodelog/slogd/data"
	"github.com/pkg/errors"
)

// DefaultKey is the name of the level segment
const DefaultKey = "slogd_shm"

// Segment layout. Regions are disjoint so writes to one never disturb a
// reader of another.
const (
	SegmentSize = 32 * 1024

	confPathOff = 0
	confPathLen = 4096

	attrOff = confPathOff + confPathLen
	attrLen = 64

	catalogOff = attrOff + attrLen
	catalogLen = 4096

	levelOff    = catalogOff + catalogLen
	levelLenLen = 2
	// LevelCap is the largest snapshot the level region holds
	LevelCap = 1024
)

// global attribute region fields
const (
	headMarker uint32 = 0x5A5AA5A5
	tailMarker uint32 = 0xA5A55A5A

	// AttrTypeLevel marks a segment carrying level state
	AttrTypeLevel uint32 = 1

	attrVersionOff = 8
	attrVersionLen = 16
	attrTailOff    = attrLen - 4
)

// LayoutVersion is written by the master. Readers accept any minor/patch of
// the same major.
var LayoutVersion = semver.MustParse("1.0.0")

// Publisher owns the level segment when it is the master instance, and reads
// it otherwise.
type Publisher struct {
	rs     RegionStore
	key    string
	devID  int32
	id     string
	master bool
}

// NewPublisher returns a publisher for the segment key. devID is the device
// this instance serves; data.AllDevices makes it the master.
func NewPublisher(rs RegionStore, key string, devID int32, id string) *Publisher {
	if key == "" {
		key = DefaultKey
	}
	return &Publisher{
		rs:     rs,
		key:    key,
		devID:  devID,
		id:     id,
		master: devID == data.AllDevices,
	}
}

// IsMaster returns true if this instance may write the segment
func (p *Publisher) IsMaster() bool {
	return p.master
}

// DevID returns the device this instance serves
func (p *Publisher) DevID() int32 {
	return p.devID
}

// Key returns the segment key
func (p *Publisher) Key() string {
	return p.key
}

// Init creates the segment and writes the config path and global attributes.
// An existing segment is assumed stale and recreated. VF instances do
// nothing.
func (p *Publisher) Init(confPath string) error {
	if !p.master {
		return nil
	}

	if len(confPath) >= confPathLen {
		return errors.WithMessagef(data.ErrInputInvalid, "config path len %v exceeds %v",
			len(confPath), confPathLen-1)
	}

	if err := acquireOwner(p.rs, p.key, p.id, int32(os.Getpid())); err != nil {
		return err
	}

	if p.rs.Exists(p.key) {
		log.Printf("shm: removing stale segment %v", p.key)
		if err := p.rs.Remove(p.key); err != nil {
			return err
		}
	}

	if err := p.rs.Create(p.key, SegmentSize); err != nil {
		return errors.WithMessagef(data.ErrShmUnavailable, "create %v: %v", p.key, err)
	}

	path := make([]byte, confPathLen)
	copy(path, confPath)
	if err := p.rs.WriteAt(p.key, path, confPathOff); err != nil {
		return err
	}

	return p.rs.WriteAt(p.key, encodeAttrs(), attrOff)
}

func encodeAttrs() []byte {
	buf := make([]byte, attrLen)
	binary.LittleEndian.PutUint32(buf[0:4], headMarker)
	binary.LittleEndian.PutUint32(buf[4:8], AttrTypeLevel)
	copy(buf[attrVersionOff:attrVersionOff+attrVersionLen], LayoutVersion.String())
	binary.LittleEndian.PutUint32(buf[attrTailOff:], tailMarker)
	return buf
}

func checkAttrs(buf []byte) error {
	if binary.LittleEndian.Uint32(buf[0:4]) != headMarker ||
		binary.LittleEndian.Uint32(buf[attrTailOff:]) != tailMarker {
		return errors.WithMessage(data.ErrShmUnavailable, "attribute markers corrupt")
	}

	if t := binary.LittleEndian.Uint32(buf[4:8]); t != AttrTypeLevel {
		return errors.WithMessagef(data.ErrShmUnavailable, "unexpected attribute type %v", t)
	}

	vb := buf[attrVersionOff : attrVersionOff+attrVersionLen]
	if i := bytes.IndexByte(vb, 0); i >= 0 {
		vb = vb[:i]
	}
	v, err := semver.Parse(string(vb))
	if err != nil {
		return errors.WithMessagef(data.ErrShmUnavailable, "layout version %q: %v", vb, err)
	}
	if v.Major != LayoutVersion.Major {
		return errors.WithMessagef(data.ErrShmUnavailable, "layout version %v, expected %v.x",
			v, LayoutVersion.Major)
	}

	return nil
}

// Available returns nil if the segment exists and carries valid attributes
func (p *Publisher) Available() error {
	if !p.rs.Exists(p.key) {
		return errors.WithMessagef(data.ErrShmUnavailable, "segment %v does not exist", p.key)
	}
	buf := make([]byte, attrLen)
	if err := p.rs.ReadAt(p.key, buf, attrOff); err != nil {
		return err
	}
	return checkAttrs(buf)
}

// PublishLevels writes an encoded snapshot to the level region. The buffer
// is binary and copied with its full length. VF instances return nil without
// touching the segment.
func (p *Publisher) PublishLevels(snap []byte) error {
	if !p.master {
		return nil
	}

	if len(snap) > LevelCap {
		return errors.WithMessagef(data.ErrInputInvalid, "snapshot len %v exceeds %v",
			len(snap), LevelCap)
	}

	buf := make([]byte, levelLenLen+len(snap))
	binary.LittleEndian.PutUint16(buf, uint16(len(snap)))
	copy(buf[levelLenLen:], snap)

	return p.rs.WriteAt(p.key, buf, levelOff)
}

// PublishModuleCatalog writes the ';' joined module names. The whole region
// is rewritten so a shorter catalog leaves no trailing names behind.
func (p *Publisher) PublishModuleCatalog(names []string) error {
	if !p.master {
		return nil
	}

	var sb strings.Builder
	for _, n := range names {
		sb.WriteString(n)
		sb.WriteByte(';')
	}

	if sb.Len() >= catalogLen {
		return errors.WithMessagef(data.ErrInputInvalid, "module catalog len %v exceeds %v",
			sb.Len(), catalogLen-1)
	}

	buf := make([]byte, catalogLen)
	copy(buf, sb.String())
	return p.rs.WriteAt(p.key, buf, catalogOff)
}

// ReadLevels copies the current snapshot out of the segment
func (p *Publisher) ReadLevels() ([]byte, error) {
	if err := p.Available(); err != nil {
		return nil, err
	}

	buf := make([]byte, levelLenLen+LevelCap)
	if err := p.rs.ReadAt(p.key, buf, levelOff); err != nil {
		return nil, err
	}

	n := int(binary.LittleEndian.Uint16(buf))
	if n == 0 {
		return nil, errors.WithMessage(data.ErrShmUnavailable, "no levels published")
	}
	if n > LevelCap {
		return nil, errors.WithMessagef(data.ErrShmUnavailable, "snapshot len %v corrupt", n)
	}

	ret := make([]byte, n)
	copy(ret, buf[levelLenLen:])
	return ret, nil
}

func (p *Publisher) readString(off, n int) (string, error) {
	if err := p.Available(); err != nil {
		return "", err
	}

	buf := make([]byte, n)
	if err := p.rs.ReadAt(p.key, buf, off); err != nil {
		return "", err
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), nil
}

// ReadConfigPath returns the config file path the master is using
func (p *Publisher) ReadConfigPath() (string, error) {
	return p.readString(confPathOff, confPathLen)
}

// ReadModuleCatalog returns the module names published by the master
func (p *Publisher) ReadModuleCatalog() ([]string, error) {
	s, err := p.readString(catalogOff, catalogLen)
	if err != nil {
		return nil, err
	}
	return data.ParseCatalog(s), nil
}

// Exit removes the segment and releases ownership. VF instances do nothing.
func (p *Publisher) Exit() error {
	if !p.master {
		return nil
	}
	if err := p.rs.Remove(p.key); err != nil {
		return err
	}
	return releaseOwner(p.rs, p.key, int32(os.Getpid()))
}
