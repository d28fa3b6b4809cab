package main

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"
)

func TestWifiServices(t *testing.T) {
	raw := []managedService{
		{Path: "/net/connman/service/wifi_aa_686f6d65_managed_psk", Props: map[string]dbus.Variant{
			"Type": dbus.MakeVariant("wifi"), "Name": dbus.MakeVariant("home"),
		}},
		{Path: "/net/connman/service/ethernet_bb_cable", Props: map[string]dbus.Variant{
			"Type": dbus.MakeVariant("ethernet"), "Name": dbus.MakeVariant("Wired"),
		}},
		{Path: "/net/connman/service/wifi_aa_hidden_managed_psk", Props: map[string]dbus.Variant{
			"Type": dbus.MakeVariant("wifi"),
		}},
	}

	require.Equal(t, []Service{
		{Name: "home", ServiceID: "/net/connman/service/wifi_aa_686f6d65_managed_psk"},
		{Name: "", ServiceID: "/net/connman/service/wifi_aa_hidden_managed_psk"},
	}, wifiServices(raw))
}

func TestStateChange(t *testing.T) {
	const path = dbus.ObjectPath("/net/connman/service/wifi_home")
	tests := []struct {
		name string
		sig  *dbus.Signal
		want StateChanged
		ok   bool
	}{
		{
			name: "state update",
			sig:  &dbus.Signal{Path: path, Name: propertySignal, Body: []interface{}{"State", dbus.MakeVariant("ready")}},
			want: StateChanged{ServiceID: string(path), State: ServiceReady},
			ok:   true,
		},
		{
			name: "other property",
			sig:  &dbus.Signal{Path: path, Name: propertySignal, Body: []interface{}{"Strength", dbus.MakeVariant(uint8(70))}},
		},
		{
			name: "other signal",
			sig:  &dbus.Signal{Path: path, Name: "net.connman.Manager.PropertyChanged", Body: []interface{}{"State", dbus.MakeVariant("online")}},
		},
		{
			name: "short body",
			sig:  &dbus.Signal{Path: path, Name: propertySignal, Body: []interface{}{"State"}},
		},
		{
			name: "state not a string",
			sig:  &dbus.Signal{Path: path, Name: propertySignal, Body: []interface{}{"State", dbus.MakeVariant(true)}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := stateChange(tt.sig)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestIsDBusError(t *testing.T) {
	name := "net.connman.Error.AlreadyConnected"
	require.True(t, isDBusError(dbus.Error{Name: name}, name))
	require.True(t, isDBusError(dbus.NewError(name, nil), name))
	require.False(t, isDBusError(dbus.Error{Name: "net.connman.Error.Failed"}, name))
	require.False(t, isDBusError(errors.New(name), name))
}

func TestTechnologyConnected(t *testing.T) {
	// Manager State would read "online" here because of a wired link; only
	// the wifi technology's own flag counts.
	up, err := technologyConnected(map[string]dbus.Variant{
		"Type": dbus.MakeVariant("wifi"), "Powered": dbus.MakeVariant(true), "Connected": dbus.MakeVariant(false),
	})
	require.NoError(t, err)
	require.False(t, up)

	up, err = technologyConnected(map[string]dbus.Variant{"Connected": dbus.MakeVariant(true)})
	require.NoError(t, err)
	require.True(t, up)

	_, err = technologyConnected(map[string]dbus.Variant{})
	require.Error(t, err)
	_, err = technologyConnected(map[string]dbus.Variant{"Connected": dbus.MakeVariant("yes")})
	require.Error(t, err)
}

func TestLogMatchError(t *testing.T) {
	var buf bytes.Buffer
	c := &connman{logger: slog.New(slog.NewTextHandler(&buf, nil))}

	c.logMatchError(nil)
	require.Empty(t, buf.String())

	c.logMatchError(dbus.NewError("org.freedesktop.DBus.Error.AccessDenied", nil))
	require.Contains(t, buf.String(), "level=WARN")
	require.Contains(t, buf.String(), "PropertyChanged")
	require.Contains(t, buf.String(), "AccessDenied")
}
