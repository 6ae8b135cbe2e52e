package trading

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalCopyBot/internal/domain"
)

func commandFixture() (*CommandExecutor, *mockVenue, *mockVenue) {
	master := newMockVenue("master")
	master.positions = []domain.Position{
		position("m1", domain.Long, 3650, 3642, 3652, "99/3652"),
		position("m2", domain.Long, 3650, 3642, 3654, "99/3652"),
		position("m3", domain.Long, 3610, 3600, 3615, "100/3615"),
	}
	replica := newMockVenue("replica")
	replica.positions = []domain.Position{
		position("r1", domain.Long, 3650.2, 3642, 3652, "99/3652"),
		position("r2", domain.Long, 3650.2, 3642, 3654, "99/3652"),
	}
	runners := []AccountRunner{
		NewDirectRunner(domain.Account{Name: "replica"}, replica),
		NewDirectRunner(domain.Account{Name: "master", IsMaster: true}, master),
	}
	return NewCommandExecutor(runners, "20241211", 0, &mockLogger{}), master, replica
}

func TestCommandExecutor_Close(t *testing.T) {
	exec, master, replica := commandFixture()

	n, err := exec.Execute(context.Background(), domain.ManualCommand{Kind: domain.CommandClose, SignalID: 99})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"m1", "m2"}, master.closed)
	assert.Equal(t, []string{"r1", "r2"}, replica.closed)
	require.Len(t, master.positions, 1)
	assert.Equal(t, "m3", master.positions[0].Ticket)
}

func TestCommandExecutor_TakeFirstTarget(t *testing.T) {
	exec, master, replica := commandFixture()

	n, err := exec.Execute(context.Background(), domain.ManualCommand{Kind: domain.CommandTakeFirstTarget, SignalID: 99})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"m1"}, master.closed)
	assert.Equal(t, []string{"r1"}, replica.closed)
}

func TestCommandExecutor_BreakEven(t *testing.T) {
	exec, master, replica := commandFixture()

	n, err := exec.Execute(context.Background(), domain.ManualCommand{Kind: domain.CommandBreakEven, SignalID: 99})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, modifyCall{ticket: "m1", newStop: 3650, target: 3652}, master.modified[0])
	assert.Equal(t, modifyCall{ticket: "r2", newStop: 3650.2, target: 3654}, replica.modified[1])

	// already at break-even
	n, err = exec.Execute(context.Background(), domain.ManualCommand{Kind: domain.CommandBreakEven, SignalID: 99})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCommandExecutor_ReplicaFailureDoesNotStopMaster(t *testing.T) {
	exec, master, replica := commandFixture()
	replica.closeErr = errors.New("connection reset")

	n, err := exec.Execute(context.Background(), domain.ManualCommand{Kind: domain.CommandClose, SignalID: 99})
	assert.Error(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"m1", "m2"}, master.closed)
}

func TestCommandExecutor_UnknownSignal(t *testing.T) {
	exec, master, _ := commandFixture()

	n, err := exec.Execute(context.Background(), domain.ManualCommand{Kind: domain.CommandClose, SignalID: 7})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, master.closed)
}
