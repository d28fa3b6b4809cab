package main

import (
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"
)

type inputReply struct {
	fields map[string]dbus.Variant
	err    *dbus.Error
}

func requestInput(a *agent, service string, fields map[string]dbus.Variant) <-chan inputReply {
	out := make(chan inputReply, 1)
	go func() {
		f, err := a.RequestInput(dbus.ObjectPath(service), fields)
		out <- inputReply{f, err}
	}()
	return out
}

var passphraseField = map[string]dbus.Variant{
	"Passphrase": dbus.MakeVariant(map[string]dbus.Variant{"Type": dbus.MakeVariant("psk")}),
}

// provideWhenAsked retries until RequestInput has registered its request.
func provideWhenAsked(t *testing.T, a *agent, service, pass string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return a.provide(service, pass) == nil
	}, 2*time.Second, 5*time.Millisecond)
}

func TestAgentRequestInput(t *testing.T) {
	pub := &collectingPublisher{}
	a := newAgent(pub, 5*time.Second, discardLogger())

	reply := requestInput(a, "/net/connman/service/wifi_home", passphraseField)
	provideWhenAsked(t, a, "/net/connman/service/wifi_home", "now")

	r := <-reply
	require.Nil(t, r.err)
	require.Equal(t, "now", r.fields["Passphrase"].Value())
	require.Contains(t, pub.all(), Event(InputRequired{ServiceID: "/net/connman/service/wifi_home"}))

	require.ErrorIs(t, a.provide("/net/connman/service/wifi_home", "again"), ErrNoInputRequest)
}

func TestAgentWithoutPassphraseField(t *testing.T) {
	pub := &collectingPublisher{}
	a := newAgent(pub, time.Second, discardLogger())
	_, err := a.RequestInput("/net/connman/service/wifi_hidden", map[string]dbus.Variant{
		"Name": dbus.MakeVariant(map[string]dbus.Variant{}),
	})
	require.NotNil(t, err)
	require.Equal(t, "net.connman.Agent.Error.Canceled", err.Name)
	require.Empty(t, pub.all())
}

func TestAgentTimesOut(t *testing.T) {
	a := newAgent(&collectingPublisher{}, 20*time.Millisecond, discardLogger())
	r := <-requestInput(a, "/net/connman/service/wifi_home", passphraseField)
	require.NotNil(t, r.err)
	require.ErrorIs(t, a.provide("/net/connman/service/wifi_home", "late"), ErrNoInputRequest)
}

func TestAgentCancel(t *testing.T) {
	pub := &collectingPublisher{}
	a := newAgent(pub, time.Minute, discardLogger())
	reply := requestInput(a, "/net/connman/service/wifi_home", passphraseField)
	require.Eventually(t, func() bool { return len(pub.all()) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.Nil(t, a.Cancel())
	select {
	case r := <-reply:
		require.NotNil(t, r.err)
	case <-time.After(2 * time.Second):
		t.Fatal("request not canceled")
	}
}
