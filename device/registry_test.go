package device

import (
	"testing"

	"github.com/ardnew/usbcore/hal"
)

func TestHandlerRegistryRegisterAndLookup(t *testing.T) {
	var r HandlerRegistry
	ep := hal.NewEndpointAddr(1, true)
	called := false
	r.RegisterHandler(ep, 1, Handler{
		HandlePacket: func(hal.EndpointAddr) { called = true },
	})

	h := r.HandlerFor(ep, 1)
	if h.HandlePacket == nil {
		t.Fatal("expected a registered handler")
	}
	h.HandlePacket(ep)
	if !called {
		t.Error("HandlePacket was not invoked")
	}
}

func TestHandlerRegistryUnregisteredIsEmpty(t *testing.T) {
	var r HandlerRegistry
	ep := hal.NewEndpointAddr(5, false)
	h := r.HandlerFor(ep, 1)
	if h.HandlePacket != nil || h.Init != nil || h.Deinit != nil {
		t.Error("expected zero-value handler for unregistered endpoint")
	}
}

func TestHandlerRegistryOutOfRangeNoops(t *testing.T) {
	var r HandlerRegistry
	ep := hal.NewEndpointAddr(1, true)

	r.RegisterHandler(ep, 0, Handler{HandlePacket: func(hal.EndpointAddr) {}})
	if h := r.HandlerFor(ep, 0); h.HandlePacket != nil {
		t.Error("config 0 should not be a valid registration slot")
	}

	r.RegisterHandler(ep, MaxConfigurations+1, Handler{HandlePacket: func(hal.EndpointAddr) {}})
	if h := r.HandlerFor(ep, MaxConfigurations+1); h.HandlePacket != nil {
		t.Error("config beyond MaxConfigurations should not be a valid registration slot")
	}
}

func TestHandlerRegistryUnregisterHandler(t *testing.T) {
	var r HandlerRegistry
	ep := hal.NewEndpointAddr(2, false)
	r.RegisterHandler(ep, 1, Handler{HandlePacket: func(hal.EndpointAddr) {}})
	r.UnregisterHandler(ep, 1)

	if h := r.HandlerFor(ep, 1); h.HandlePacket != nil {
		t.Error("expected handler to be cleared")
	}
}

func TestHandlerRegistryDirectionSeparation(t *testing.T) {
	var r HandlerRegistry
	epIn := hal.NewEndpointAddr(1, true)
	epOut := hal.NewEndpointAddr(1, false)

	r.RegisterHandler(epIn, 1, Handler{HandlePacket: func(hal.EndpointAddr) {}})

	if h := r.HandlerFor(epOut, 1); h.HandlePacket != nil {
		t.Error("registering the IN direction must not affect OUT")
	}
}

func TestHandlerRegistryControlHandler(t *testing.T) {
	var r HandlerRegistry
	r.RegisterControlHandler(1, 1, func(iface uint8, pkt *SetupPacket) Answer {
		return Answer{Response: ResponseZeroLength}
	})

	fn := r.ControlHandlerFor(1, 1)
	if fn == nil {
		t.Fatal("expected control handler")
	}
	if a := fn(1, &SetupPacket{}); a.Response != ResponseZeroLength {
		t.Errorf("Response = %v, want ResponseZeroLength", a.Response)
	}

	if r.ControlHandlerFor(2, 1) != nil {
		t.Error("unregistered interface should have no control handler")
	}
}

func TestHandlerRegistryControlDataHandler(t *testing.T) {
	var r HandlerRegistry
	var gotData []byte
	r.RegisterControlDataHandler(1, 1, func(iface uint8, pkt *SetupPacket, data []byte) {
		gotData = append([]byte(nil), data...)
	})

	fn := r.ControlDataHandlerFor(1, 1)
	if fn == nil {
		t.Fatal("expected control data handler")
	}
	fn(1, &SetupPacket{}, []byte{1, 2, 3})
	if len(gotData) != 3 || gotData[0] != 1 || gotData[2] != 3 {
		t.Errorf("gotData = %v, want [1 2 3]", gotData)
	}

	r.UnregisterControlDataHandler(1, 1)
	if r.ControlDataHandlerFor(1, 1) != nil {
		t.Error("expected control data handler to be cleared")
	}
}

func TestHandlerRegistryAltModeHandler(t *testing.T) {
	var r HandlerRegistry
	r.RegisterAltModeHandler(1, 1, func(alt uint8) bool { return alt == 2 })

	fn := r.AltModeHandlerFor(1, 1)
	if fn == nil {
		t.Fatal("expected alt-mode handler")
	}
	if fn(2) != true || fn(3) != false {
		t.Error("alt-mode handler did not behave as registered")
	}
}

func TestHandlerRegistrySOFHandler(t *testing.T) {
	var r HandlerRegistry
	count := 0
	r.RegisterSOFHandler(1, func() { count++ })
	r.RegisterSOFHandler(2, func() { count++ })

	for _, fn := range r.sofHandlers {
		if fn != nil {
			fn()
		}
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	r.UnregisterSOFHandler(1)
	count = 0
	for _, fn := range r.sofHandlers {
		if fn != nil {
			fn()
		}
	}
	if count != 1 {
		t.Errorf("count after unregister = %d, want 1", count)
	}
}

func TestHandlerRegistryInitDeinitHandlers(t *testing.T) {
	var r HandlerRegistry
	var initialized, deinitialized []hal.EndpointAddr

	epA := hal.NewEndpointAddr(1, true)
	epB := hal.NewEndpointAddr(2, false)

	r.RegisterHandler(epA, 1, Handler{
		Init:   func(ep hal.EndpointAddr) { initialized = append(initialized, ep) },
		Deinit: func(ep hal.EndpointAddr) { deinitialized = append(deinitialized, ep) },
	})
	r.RegisterHandler(epB, 1, Handler{
		Init:   func(ep hal.EndpointAddr) { initialized = append(initialized, ep) },
		Deinit: func(ep hal.EndpointAddr) { deinitialized = append(deinitialized, ep) },
	})

	r.InitHandlers(1)
	if len(initialized) != 2 {
		t.Fatalf("initialized = %d handlers, want 2", len(initialized))
	}

	r.DeinitHandlers(1)
	if len(deinitialized) != 2 {
		t.Fatalf("deinitialized = %d handlers, want 2", len(deinitialized))
	}
}

func TestHandlerRegistryInitHandlersZeroConfigNoop(t *testing.T) {
	var r HandlerRegistry
	called := false
	r.RegisterHandler(hal.NewEndpointAddr(1, true), 1, Handler{
		Init: func(hal.EndpointAddr) { called = true },
	})
	r.InitHandlers(0)
	if called {
		t.Error("InitHandlers(0) should be a no-op")
	}
}
