package coordinator

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/hashfleet.net/internal/adapter/logging"
	"gitlab.com/hashfleet.net/internal/coordinator/registry"
	"gitlab.com/hashfleet.net/internal/protocol"
)

// stubTaskService fakes the external work API.
type stubTaskService struct {
	payload  string
	genErr   error
	accepted bool
	valErr   error

	generated []int
	validated []string
}

func (s *stubTaskService) GenerateTask(ctx context.Context, difficulty int) (string, error) {
	s.generated = append(s.generated, difficulty)
	if s.genErr != nil {
		return "", s.genErr
	}
	return s.payload, nil
}

func (s *stubTaskService) ValidateSolution(ctx context.Context, difficulty int, nonceHex, hashHex string) (bool, error) {
	s.validated = append(s.validated, hashHex)
	if s.valErr != nil {
		return false, s.valErr
	}
	return s.accepted, nil
}

// fakeWorker is the worker end of a registered pipe connection.
type fakeWorker struct {
	handle *registry.Handle
	lines  chan string
}

func newFakeWorker(t *testing.T, reg *registry.Registry) *fakeWorker {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})

	w := &fakeWorker{
		handle: registry.NewHandle(server),
		lines:  make(chan string, 32),
	}
	go func() {
		scanner := bufio.NewScanner(client)
		for scanner.Scan() {
			w.lines <- scanner.Text()
		}
		close(w.lines)
	}()

	reg.Register(w.handle)
	return w
}

func (w *fakeWorker) recv(t *testing.T) string {
	t.Helper()
	select {
	case line := <-w.lines:
		return line
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for coordinator message")
		return ""
	}
}

func (w *fakeWorker) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case line := <-w.lines:
		t.Fatalf("unexpected message: %q", line)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSolveDistributesPartitionedTask(t *testing.T) {
	reg := registry.NewRegistry(logging.NewNopLogger())
	tasks := &stubTaskService{payload: "task-data", accepted: true}
	distributor := NewDistributor(reg, tasks, logging.NewNopLogger())

	workers := []*fakeWorker{
		newFakeWorker(t, reg),
		newFakeWorker(t, reg),
		newFakeWorker(t, reg),
	}

	require.NoError(t, distributor.Solve(context.Background(), 4))

	for i, w := range workers {
		assert.Equal(t, fmt.Sprintf("NONCE %d 3", i), w.recv(t))
		assert.Equal(t, "PAYLOAD task-data", w.recv(t))
		assert.Equal(t, "SOLVE 4", w.recv(t))
	}

	assert.Equal(t, []int{4}, tasks.generated)

	task := distributor.ActiveTask()
	require.NotNil(t, task)
	assert.Equal(t, 4, task.Difficulty)
	assert.Equal(t, "task-data", task.Payload)
	assert.Equal(t, 3, task.Workers)
}

func TestSolveRejectsOverlappingTask(t *testing.T) {
	reg := registry.NewRegistry(logging.NewNopLogger())
	tasks := &stubTaskService{payload: "data"}
	distributor := NewDistributor(reg, tasks, logging.NewNopLogger())
	w := newFakeWorker(t, reg)

	require.NoError(t, distributor.Solve(context.Background(), 2))
	assert.ErrorIs(t, distributor.Solve(context.Background(), 3), ErrTaskActive)
	assert.Equal(t, []int{2}, tasks.generated, "second solve never reaches the work API")

	distributor.ClearTask()
	require.NoError(t, distributor.Solve(context.Background(), 3))
	_ = w
}

func TestSolveWithNoWorkers(t *testing.T) {
	reg := registry.NewRegistry(logging.NewNopLogger())
	distributor := NewDistributor(reg, &stubTaskService{}, logging.NewNopLogger())

	assert.ErrorIs(t, distributor.Solve(context.Background(), 4), ErrNoWorkers)
	assert.Nil(t, distributor.ActiveTask())
}

func TestSolveAbortsWhenGenerationFails(t *testing.T) {
	reg := registry.NewRegistry(logging.NewNopLogger())
	tasks := &stubTaskService{genErr: errors.New("api down")}
	distributor := NewDistributor(reg, tasks, logging.NewNopLogger())
	w := newFakeWorker(t, reg)

	err := distributor.Solve(context.Background(), 4)
	require.Error(t, err)
	assert.Nil(t, distributor.ActiveTask())

	// The nonce assignment went out before the API call; the task did not.
	assert.Equal(t, "NONCE 0 1", w.recv(t))
	w.expectNothing(t)
}

func TestFoundAcceptedCancelsFleet(t *testing.T) {
	reg := registry.NewRegistry(logging.NewNopLogger())
	tasks := &stubTaskService{payload: "data", accepted: true}
	distributor := NewDistributor(reg, tasks, logging.NewNopLogger())
	results := NewResultCoordinator(reg, tasks, distributor, logging.NewNopLogger())

	workers := []*fakeWorker{
		newFakeWorker(t, reg),
		newFakeWorker(t, reg),
		newFakeWorker(t, reg),
	}
	require.NoError(t, distributor.Solve(context.Background(), 4))
	for _, w := range workers {
		w.recv(t) // NONCE
		w.recv(t) // PAYLOAD
		w.recv(t) // SOLVE
	}

	results.HandleFound(context.Background(), workers[1].handle,
		protocol.Parse("FOUND 0000abcd 2a"))

	for _, w := range workers {
		assert.Equal(t, "CANCELLED", w.recv(t))
	}
	assert.Equal(t, []string{"0000abcd"}, tasks.validated)
	assert.Nil(t, distributor.ActiveTask(), "accepted solution resolves the task")
}

func TestFoundRejectedKeepsSearching(t *testing.T) {
	reg := registry.NewRegistry(logging.NewNopLogger())
	tasks := &stubTaskService{payload: "data", accepted: false}
	distributor := NewDistributor(reg, tasks, logging.NewNopLogger())
	results := NewResultCoordinator(reg, tasks, distributor, logging.NewNopLogger())

	w := newFakeWorker(t, reg)
	require.NoError(t, distributor.Solve(context.Background(), 4))
	w.recv(t)
	w.recv(t)
	w.recv(t)

	results.HandleFound(context.Background(), w.handle, protocol.Parse("FOUND ffff 2a"))

	w.expectNothing(t)
	assert.NotNil(t, distributor.ActiveTask(), "rejected solution leaves the task unresolved")
}

func TestFoundIgnoredWithoutTaskOrArgs(t *testing.T) {
	reg := registry.NewRegistry(logging.NewNopLogger())
	tasks := &stubTaskService{accepted: true}
	distributor := NewDistributor(reg, tasks, logging.NewNopLogger())
	results := NewResultCoordinator(reg, tasks, distributor, logging.NewNopLogger())
	w := newFakeWorker(t, reg)

	results.HandleFound(context.Background(), w.handle, protocol.Parse("FOUND 0000abcd 2a"))
	assert.Empty(t, tasks.validated, "no active task, nothing to validate")

	require.NoError(t, distributor.Solve(context.Background(), 1))
	w.recv(t)
	w.recv(t)
	w.recv(t)
	results.HandleFound(context.Background(), w.handle, protocol.Parse("FOUND onlyhash"))
	assert.Empty(t, tasks.validated, "malformed report is dropped")
}

func TestConsoleCommands(t *testing.T) {
	reg := registry.NewRegistry(logging.NewNopLogger())
	tasks := &stubTaskService{payload: "data"}
	distributor := NewDistributor(reg, tasks, logging.NewNopLogger())

	t.Run("status with no workers", func(t *testing.T) {
		var out bytes.Buffer
		console := NewConsole(reg, distributor, logging.NewNopLogger(), strings.NewReader(""), &out)
		assert.True(t, console.Execute(context.Background(), "status"))
		assert.Contains(t, out.String(), "No workers connected.")
	})

	w := newFakeWorker(t, reg)

	t.Run("status lists worker endpoints", func(t *testing.T) {
		var out bytes.Buffer
		console := NewConsole(reg, distributor, logging.NewNopLogger(), strings.NewReader(""), &out)
		assert.True(t, console.Execute(context.Background(), "STATUS"))
		assert.Contains(t, out.String(), "Connected workers:")
		assert.Contains(t, out.String(), w.handle.Addr)
	})

	t.Run("progress broadcasts", func(t *testing.T) {
		var out bytes.Buffer
		console := NewConsole(reg, distributor, logging.NewNopLogger(), strings.NewReader(""), &out)
		assert.True(t, console.Execute(context.Background(), "progress"))
		assert.Equal(t, "PROGRESS", w.recv(t))
	})

	t.Run("solve with bad difficulty does nothing", func(t *testing.T) {
		var out bytes.Buffer
		console := NewConsole(reg, distributor, logging.NewNopLogger(), strings.NewReader(""), &out)
		assert.True(t, console.Execute(context.Background(), "solve four"))
		assert.True(t, console.Execute(context.Background(), "solve"))
		assert.Nil(t, distributor.ActiveTask())
		w.expectNothing(t)
	})

	t.Run("solve then cancel clears the task", func(t *testing.T) {
		var out bytes.Buffer
		console := NewConsole(reg, distributor, logging.NewNopLogger(), strings.NewReader(""), &out)
		assert.True(t, console.Execute(context.Background(), "solve 4"))
		w.recv(t)
		w.recv(t)
		w.recv(t)
		require.NotNil(t, distributor.ActiveTask())

		assert.True(t, console.Execute(context.Background(), "cancel"))
		assert.Equal(t, "CANCELLED", w.recv(t))
		assert.Nil(t, distributor.ActiveTask())
	})

	t.Run("help prints the command list", func(t *testing.T) {
		var out bytes.Buffer
		console := NewConsole(reg, distributor, logging.NewNopLogger(), strings.NewReader(""), &out)
		assert.True(t, console.Execute(context.Background(), "help"))
		for _, cmd := range []string{"status", "solve <d>", "cancel", "progress", "quit"} {
			assert.Contains(t, out.String(), cmd)
		}
	})

	t.Run("unrecognized input is echoed", func(t *testing.T) {
		var out bytes.Buffer
		console := NewConsole(reg, distributor, logging.NewNopLogger(), strings.NewReader(""), &out)
		assert.True(t, console.Execute(context.Background(), "launch missiles"))
		assert.Contains(t, out.String(), "unrecognized command: launch missiles")
	})

	t.Run("quit stops the console", func(t *testing.T) {
		var out bytes.Buffer
		console := NewConsole(reg, distributor, logging.NewNopLogger(), strings.NewReader(""), &out)
		assert.False(t, console.Execute(context.Background(), "QUIT"))
	})
}

func TestListenerAdmitsAuthenticatedWorkers(t *testing.T) {
	reg := registry.NewRegistry(logging.NewNopLogger())
	tasks := &stubTaskService{payload: "data", accepted: true}
	distributor := NewDistributor(reg, tasks, logging.NewNopLogger())
	results := NewResultCoordinator(reg, tasks, distributor, logging.NewNopLogger())

	listener := NewListener("secret123", reg, results, logging.NewNopLogger(),
		WithAddress("127.0.0.1:0"))
	require.NoError(t, listener.Start())
	defer listener.Stop()

	conn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	expect := func(want string) {
		require.True(t, scanner.Scan())
		require.Equal(t, want, scanner.Text())
	}
	send := func(line string) {
		_, err := conn.Write([]byte(line + "\n"))
		require.NoError(t, err)
	}

	expect("WHO_ARE_YOU_?")
	send("ITS_ME")
	expect("GIMME_PASSWORD")
	send("PASSWD secret123")
	expect("HELLO_YOU")
	send("READY")
	expect("OK")

	require.Eventually(t, func() bool { return reg.Size() == 1 },
		time.Second, 10*time.Millisecond)

	var out bytes.Buffer
	console := NewConsole(reg, distributor, logging.NewNopLogger(), strings.NewReader(""), &out)
	console.Execute(context.Background(), "status")
	assert.Contains(t, out.String(), conn.LocalAddr().String())

	// A FOUND report flows through to validation and cancels the fleet.
	require.NoError(t, distributor.Solve(context.Background(), 4))
	expect("NONCE 0 1")
	expect("PAYLOAD data")
	expect("SOLVE 4")
	send("FOUND 0000abcd 2a")
	expect("CANCELLED")

	// Disconnect removes the handle.
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return reg.Size() == 0 },
		time.Second, 10*time.Millisecond)
}

func TestListenerRejectsWrongPassword(t *testing.T) {
	reg := registry.NewRegistry(logging.NewNopLogger())
	tasks := &stubTaskService{}
	distributor := NewDistributor(reg, tasks, logging.NewNopLogger())
	results := NewResultCoordinator(reg, tasks, distributor, logging.NewNopLogger())

	listener := NewListener("secret123", reg, results, logging.NewNopLogger(),
		WithAddress("127.0.0.1:0"))
	require.NoError(t, listener.Start())
	defer listener.Stop()

	conn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	expect := func(want string) {
		require.True(t, scanner.Scan())
		require.Equal(t, want, scanner.Text())
	}
	send := func(line string) {
		_, err := conn.Write([]byte(line + "\n"))
		require.NoError(t, err)
	}

	expect("WHO_ARE_YOU_?")
	send("ITS_ME")
	expect("GIMME_PASSWORD")
	send("PASSWD wrong")
	expect("YOU_DONT_FOOL_ME")

	assert.False(t, scanner.Scan(), "connection closed after rejection")
	assert.Equal(t, 0, reg.Size(), "rejected worker never reaches the registry")
}
