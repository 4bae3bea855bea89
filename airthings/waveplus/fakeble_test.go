package waveplus

import (
	"context"
	"sync"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
)

// fakeClient serves a fixed GATT layout. Only the methods BleSensor uses are implemented.
type fakeClient struct {
	ble.Client

	// service uuid -> characteristics it exposes
	services map[string][]ble.UUID
	values   map[string][]byte
	readErr  error
	// blockRead holds ReadCharacteristic until the connection is cancelled
	blockRead       bool
	commandResponse []byte

	mu           sync.Mutex
	mtu          int
	cancels      int
	handler      ble.NotificationHandler
	disconnected chan struct{}
	once         sync.Once
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		services: map[string][]ble.UUID{
			sensorServiceUUID.String(): {measurementCharUUID, commandCharUUID},
		},
		values: map[string][]byte{
			measurementCharUUID.String(): samplePayload(),
		},
		disconnected: make(chan struct{}),
	}
}

func (c *fakeClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	var found []*ble.Service
	for _, u := range filter {
		if _, ok := c.services[u.String()]; ok {
			found = append(found, &ble.Service{UUID: u})
		}
	}
	return found, nil
}

func (c *fakeClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	var found []*ble.Characteristic
	for _, u := range c.services[s.UUID.String()] {
		for _, f := range filter {
			if u.Equal(f) {
				found = append(found, &ble.Characteristic{UUID: u})
			}
		}
	}
	return found, nil
}

func (c *fakeClient) DiscoverDescriptors(_ []ble.UUID, _ *ble.Characteristic) ([]*ble.Descriptor, error) {
	return nil, nil
}

func (c *fakeClient) ReadCharacteristic(ch *ble.Characteristic) ([]byte, error) {
	if c.blockRead {
		<-c.disconnected
		return nil, errors.New("connection closed")
	}
	if c.readErr != nil {
		return nil, c.readErr
	}
	v, ok := c.values[ch.UUID.String()]
	if !ok {
		return nil, errors.New("read not permitted")
	}
	return v, nil
}

func (c *fakeClient) Subscribe(_ *ble.Characteristic, _ bool, h ble.NotificationHandler) error {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Unsubscribe(_ *ble.Characteristic, _ bool) error {
	return nil
}

func (c *fakeClient) WriteCharacteristic(_ *ble.Characteristic, value []byte, _ bool) error {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil && c.commandResponse != nil && len(value) == 1 && value[0] == commandRequest {
		go h(c.commandResponse)
	}
	return nil
}

func (c *fakeClient) ExchangeMTU(rxMTU int) (int, error) {
	c.mu.Lock()
	c.mtu = rxMTU
	c.mu.Unlock()
	return rxMTU, nil
}

func (c *fakeClient) CancelConnection() error {
	c.mu.Lock()
	c.cancels++
	c.mu.Unlock()
	c.once.Do(func() { close(c.disconnected) })
	return nil
}

func (c *fakeClient) Disconnected() <-chan struct{} {
	return c.disconnected
}

func (c *fakeClient) cancelCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancels
}

func (c *fakeClient) isDisconnected() bool {
	select {
	case <-c.disconnected:
		return true
	default:
		return false
	}
}

// connector hands out the same client on every dial and counts the dials.
type connector struct {
	client *fakeClient
	err    error
	dials  int
}

func (c *connector) connect(_ context.Context, _ ble.AdvFilter) (ble.Client, error) {
	c.dials++
	if c.err != nil {
		return nil, c.err
	}
	return c.client, nil
}

type fakeAdvertisement struct {
	ble.Advertisement

	addr             string
	name             string
	manufacturerData []byte
}

func (a *fakeAdvertisement) Addr() ble.Addr           { return ble.NewAddr(a.addr) }
func (a *fakeAdvertisement) LocalName() string        { return a.name }
func (a *fakeAdvertisement) ManufacturerData() []byte { return a.manufacturerData }
func (a *fakeAdvertisement) RSSI() int                { return -60 }
func (a *fakeAdvertisement) Connectable() bool        { return true }
