package device

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	fnReadHoldingRegisters = 0x03
	fnReadInputRegisters   = 0x04
	fnWriteMultiple        = 0x10

	dialTimeout = 5 * time.Second
	ioTimeout   = 5 * time.Second
)

// ModbusTCP is a minimal Modbus/TCP session: MBAP header framing over a
// plain net.Conn, no retries, no pipelining — one request in flight at a
// time, a synchronous request/response session like the simplest Modbus
// client libraries. The wire protocol's fine detail isn't this gateway's
// concern; ModbusTCP exists only so the daemon has something real to open
// and poll.
type ModbusTCP struct {
	id     string
	host   string
	port   int
	unitID byte
	invType string

	mu          sync.Mutex
	conn        net.Conn
	terminated  bool
	txnID       uint32
}

// NewModbusTCP constructs a session for the inverter at host:port,
// identified on the Modbus unit bus by unitID, of the named family.
// id is the stable registry identity.
func NewModbusTCP(id, host string, port int, unitID byte, invType string) *ModbusTCP {
	return &ModbusTCP{
		id:      id,
		host:    host,
		port:    port,
		unitID:  unitID,
		invType: invType,
	}
}

func (m *ModbusTCP) ID() string   { return m.id }
func (m *ModbusTCP) Type() string { return m.invType }

func (m *ModbusTCP) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.terminated {
		return ErrTerminated
	}
	if m.conn != nil {
		return nil
	}

	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("device: dial %s: %w", addr, err)
	}
	m.conn = conn
	return nil
}

func (m *ModbusTCP) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

func (m *ModbusTCP) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *ModbusTCP) closeLocked() error {
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}

func (m *ModbusTCP) Terminate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated = true
	return m.closeLocked()
}

func (m *ModbusTCP) IsTerminated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminated
}

// ReadHarvestData scans every register range in this inverter's profile
// and returns the address→raw-value snapshot. An error from any single
// range fails the whole read: silently dropping a failed range would let
// a gateway believe a partially-dead device was healthy.
func (m *ModbusTCP) ReadHarvestData() (Registers, error) {
	if !m.IsOpen() {
		return nil, ErrNotOpen
	}

	out := make(Registers)
	for _, r := range profileFor(m.invType) {
		var fn byte = fnReadInputRegisters
		if r.holding {
			fn = fnReadHoldingRegisters
		}
		values, err := m.readRegisters(fn, r.start, r.count)
		if err != nil {
			return nil, fmt.Errorf("device %s: read %d-%d: %w", m.id, r.start, r.start+r.count, err)
		}
		for i, v := range values {
			out[strconv.Itoa(r.start+i)] = int(v)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("device %s: no registers read", m.id)
	}
	return out, nil
}

// WriteRegisters issues a single "write multiple registers" request
// (function 0x10) starting at startingAddress.
func (m *ModbusTCP) WriteRegisters(startingAddress int, values []uint16) error {
	if !m.IsOpen() {
		return ErrNotOpen
	}
	if len(values) == 0 {
		return nil
	}

	payload := make([]byte, 5+2*len(values))
	binary.BigEndian.PutUint16(payload[0:2], uint16(startingAddress))
	binary.BigEndian.PutUint16(payload[2:4], uint16(len(values)))
	payload[4] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(payload[5+2*i:7+2*i], v)
	}

	_, err := m.roundTrip(fnWriteMultiple, payload)
	if err != nil {
		return fmt.Errorf("device %s: write %d: %w", m.id, startingAddress, err)
	}
	return nil
}

func (m *ModbusTCP) readRegisters(fn byte, start, count int) ([]uint16, error) {
	req := make([]byte, 4)
	binary.BigEndian.PutUint16(req[0:2], uint16(start))
	binary.BigEndian.PutUint16(req[2:4], uint16(count))

	resp, err := m.roundTrip(fn, req)
	if err != nil {
		return nil, err
	}
	if len(resp) < 1 {
		return nil, fmt.Errorf("short response")
	}
	byteCount := int(resp[0])
	if len(resp) < 1+byteCount || byteCount != 2*count {
		return nil, fmt.Errorf("malformed response: want %d bytes, got %d", 2*count, len(resp)-1)
	}

	values := make([]uint16, count)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(resp[1+2*i : 3+2*i])
	}
	return values, nil
}

// roundTrip writes one MBAP-framed PDU and reads the matching response,
// returning the response PDU with the function code stripped off.
func (m *ModbusTCP) roundTrip(fn byte, pdu []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return nil, ErrNotOpen
	}

	txn := uint16(atomic.AddUint32(&m.txnID, 1))

	frame := make([]byte, 7+1+len(pdu))
	binary.BigEndian.PutUint16(frame[0:2], txn)
	binary.BigEndian.PutUint16(frame[2:4], 0) // protocol id, always 0
	binary.BigEndian.PutUint16(frame[4:6], uint16(1+1+len(pdu)))
	frame[6] = m.unitID
	frame[7] = fn
	copy(frame[8:], pdu)

	m.conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	if _, err := m.conn.Write(frame); err != nil {
		m.closeLocked()
		return nil, fmt.Errorf("write: %w", err)
	}

	m.conn.SetReadDeadline(time.Now().Add(ioTimeout))
	header := make([]byte, 7)
	if _, err := io.ReadFull(m.conn, header); err != nil {
		m.closeLocked()
		return nil, fmt.Errorf("read header: %w", err)
	}
	length := binary.BigEndian.Uint16(header[4:6])
	if length < 2 {
		m.closeLocked()
		return nil, fmt.Errorf("malformed MBAP length %d", length)
	}

	body := make([]byte, length-1) // minus the unit id byte already counted
	if _, err := io.ReadFull(m.conn, body); err != nil {
		m.closeLocked()
		return nil, fmt.Errorf("read body: %w", err)
	}

	respFn := body[0]
	if respFn&0x80 != 0 {
		code := byte(0)
		if len(body) > 1 {
			code = body[1]
		}
		return nil, fmt.Errorf("modbus exception 0x%02x", code)
	}
	if respFn != fn {
		return nil, fmt.Errorf("unexpected function 0x%02x, want 0x%02x", respFn, fn)
	}
	return body[1:], nil
}
