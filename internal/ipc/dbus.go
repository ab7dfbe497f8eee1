package ipc

import (
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/thereceipt/printer-bridge/internal/remote"
)

const (
	dbusInterface         = "org.freedesktop.DBus"
	dbusNameOwnerChanged  = "NameOwnerChanged"
	dbusNameHasOwner      = dbusInterface + ".NameHasOwner"
	printerInterfaceShort = "PrinterInterface"
)

// BusName is the well-known bus name the service owns for loc.
func BusName(loc Locator) string {
	return loc.Package
}

// ObjectPath maps the component name onto a D-Bus object path.
func ObjectPath(loc Locator) dbus.ObjectPath {
	return dbus.ObjectPath("/" + strings.ReplaceAll(loc.Component, ".", "/"))
}

// InterfaceName is the interface the printer methods are exported under.
func InterfaceName(loc Locator) string {
	return loc.Package + "." + printerInterfaceShort
}

// DBusBinder binds to a printer service exported on a message bus. The
// service counts as connected while its bus name has an owner.
type DBusBinder struct {
	conn   *dbus.Conn
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[ServiceConnection]*dbusSession
}

// NewDBusBinder uses conn for all sessions. The caller owns conn.
func NewDBusBinder(conn *dbus.Conn, logger *zap.Logger) *DBusBinder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBusBinder{
		conn:     conn,
		logger:   logger,
		sessions: make(map[ServiceConnection]*dbusSession),
	}
}

func (b *DBusBinder) matchOptions(loc Locator) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchInterface(dbusInterface),
		dbus.WithMatchMember(dbusNameOwnerChanged),
		dbus.WithMatchArg(0, BusName(loc)),
	}
}

// Bind watches the service's bus name and reports ownership changes.
func (b *DBusBinder) Bind(loc Locator, conn ServiceConnection) error {
	if err := loc.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	if _, exists := b.sessions[conn]; exists {
		b.mu.Unlock()
		return ErrAlreadyBound
	}
	s := &dbusSession{
		binder:  b,
		loc:     loc,
		conn:    conn,
		signals: make(chan *dbus.Signal, 16),
		done:    make(chan struct{}),
		logger:  b.logger.With(zap.String("service", loc.String())),
	}
	b.sessions[conn] = s
	b.mu.Unlock()

	if err := b.conn.AddMatchSignal(b.matchOptions(loc)...); err != nil {
		b.forget(conn)
		return fmt.Errorf("watch %s: %w", BusName(loc), err)
	}
	b.conn.Signal(s.signals)

	go s.watch()
	return nil
}

// Unbind stops watching the service.
func (b *DBusBinder) Unbind(conn ServiceConnection) error {
	s := b.forget(conn)
	if s == nil {
		return ErrNotBound
	}
	s.stop()
	b.conn.RemoveSignal(s.signals)
	return b.conn.RemoveMatchSignal(b.matchOptions(s.loc)...)
}

func (b *DBusBinder) forget(conn ServiceConnection) *dbusSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.sessions[conn]
	delete(b.sessions, conn)
	return s
}

type dbusSession struct {
	binder  *DBusBinder
	loc     Locator
	conn    ServiceConnection
	signals chan *dbus.Signal
	logger  *zap.Logger

	mu        sync.Mutex
	connected bool
	stopped   bool
	done      chan struct{}
}

func (s *dbusSession) watch() {
	var owned bool
	err := s.binder.conn.BusObject().Call(dbusNameHasOwner, 0, BusName(s.loc)).Store(&owned)
	if err != nil {
		s.logger.Warn("printer service lookup failed", zap.Error(err))
		s.setConnected(false)
		return
	}
	if owned {
		s.setConnected(true)
	} else {
		s.logger.Info("waiting for printer service", zap.String("bus_name", BusName(s.loc)))
	}

	for {
		select {
		case <-s.done:
			return
		case sig, ok := <-s.signals:
			if !ok {
				s.setConnected(false)
				return
			}
			if sig.Name != dbusInterface+"."+dbusNameOwnerChanged || len(sig.Body) != 3 {
				continue
			}
			name, _ := sig.Body[0].(string)
			newOwner, _ := sig.Body[2].(string)
			if name != BusName(s.loc) {
				continue
			}
			s.setConnected(newOwner != "")
		}
	}
}

// setConnected delivers a transition. A failed lookup reports a disconnect
// even when the service was never connected.
func (s *dbusSession) setConnected(up bool) {
	s.mu.Lock()
	if s.stopped || (up && s.connected) {
		s.mu.Unlock()
		return
	}
	wasConnected := s.connected
	s.connected = up
	s.mu.Unlock()

	if up {
		obj := s.binder.conn.Object(BusName(s.loc), ObjectPath(s.loc))
		s.logger.Info("printer service connected")
		s.conn.ServiceConnected(s.loc, dbusPrinter(obj, InterfaceName(s.loc)))
		return
	}
	if wasConnected {
		s.logger.Warn("printer service lost")
	}
	s.conn.ServiceDisconnected(s.loc)
}

func (s *dbusSession) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.done)
	}
}

// dbusPrinter calls the exported printer methods on obj.
func dbusPrinter(obj dbus.BusObject, iface string) remote.Printer {
	return dbusCaller{obj: obj, iface: iface}
}

type dbusCaller struct {
	obj   dbus.BusObject
	iface string
}

func (c dbusCaller) call(method string, args ...any) error {
	if err := c.obj.Call(c.iface+"."+method, 0, args...).Err; err != nil {
		return &RemoteError{Method: method, Message: err.Error()}
	}
	return nil
}

func (c dbusCaller) PrintText(text string) error {
	return c.call("PrintText", text)
}

func (c dbusCaller) PrintEpson(data []byte) error {
	return c.call("PrintEpson", data)
}

func (c dbusCaller) PrintBitmap(bmp *remote.Bitmap) error {
	if err := bmp.Validate(); err != nil {
		return err
	}
	return c.call("PrintBitmap", int32(bmp.Width), int32(bmp.Height), bmp.Pix)
}

func (c dbusCaller) PrintBarCode(data string, symbology, height, width int) error {
	return c.call("PrintBarCode", data, int32(symbology), int32(height), int32(width))
}

func (c dbusCaller) PrintQRCode(data string, moduleSize, errorLevel int) error {
	return c.call("PrintQRCode", data, int32(moduleSize), int32(errorLevel))
}

func (c dbusCaller) SetAlignment(alignment int) error {
	return c.call("SetAlignment", int32(alignment))
}

func (c dbusCaller) SetTextSize(size float32) error {
	return c.call("SetTextSize", float64(size))
}

func (c dbusCaller) NextLine(lines int) error {
	return c.call("NextLine", int32(lines))
}

func (c dbusCaller) SetTextBold(bold bool) error {
	return c.call("SetTextBold", bold)
}

func (c dbusCaller) PrintTableText(text []string, weight []int, alignment []int) error {
	return c.call("PrintTableText", text, toInt32s(weight), toInt32s(alignment))
}

func toInt32s(v []int) []int32 {
	out := make([]int32, len(v))
	for i, n := range v {
		out[i] = int32(n)
	}
	return out
}

func fromInt32s(v []int32) []int {
	out := make([]int, len(v))
	for i, n := range v {
		out[i] = int(n)
	}
	return out
}

// dbusService adapts a remote.Printer to the exported method set.
type dbusService struct {
	p remote.Printer
}

func failed(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	return dbus.MakeFailedError(err)
}

func (s dbusService) PrintText(text string) *dbus.Error {
	return failed(s.p.PrintText(text))
}

func (s dbusService) PrintEpson(data []byte) *dbus.Error {
	return failed(s.p.PrintEpson(data))
}

func (s dbusService) PrintBitmap(width, height int32, pix []byte) *dbus.Error {
	bmp := &remote.Bitmap{Width: int(width), Height: int(height), Pix: pix}
	if err := bmp.Validate(); err != nil {
		return failed(err)
	}
	return failed(s.p.PrintBitmap(bmp))
}

func (s dbusService) PrintBarCode(data string, symbology, height, width int32) *dbus.Error {
	return failed(s.p.PrintBarCode(data, int(symbology), int(height), int(width)))
}

func (s dbusService) PrintQRCode(data string, moduleSize, errorLevel int32) *dbus.Error {
	return failed(s.p.PrintQRCode(data, int(moduleSize), int(errorLevel)))
}

func (s dbusService) SetAlignment(alignment int32) *dbus.Error {
	return failed(s.p.SetAlignment(int(alignment)))
}

func (s dbusService) SetTextSize(size float64) *dbus.Error {
	return failed(s.p.SetTextSize(float32(size)))
}

func (s dbusService) NextLine(lines int32) *dbus.Error {
	return failed(s.p.NextLine(int(lines)))
}

func (s dbusService) SetTextBold(bold bool) *dbus.Error {
	return failed(s.p.SetTextBold(bold))
}

func (s dbusService) PrintTableText(text []string, weight, alignment []int32) *dbus.Error {
	return failed(s.p.PrintTableText(text, fromInt32s(weight), fromInt32s(alignment)))
}

// ExportDBus publishes p on conn under loc and claims its bus name.
func ExportDBus(conn *dbus.Conn, loc Locator, p remote.Printer) error {
	if err := loc.Validate(); err != nil {
		return err
	}
	if err := conn.Export(dbusService{p: p}, ObjectPath(loc), InterfaceName(loc)); err != nil {
		return fmt.Errorf("export %s: %w", ObjectPath(loc), err)
	}
	reply, err := conn.RequestName(BusName(loc), dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request name %s: %w", BusName(loc), err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("request name %s: already owned", BusName(loc))
	}
	return nil
}
