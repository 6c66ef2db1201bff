package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-quotes/jobs"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
}

func (s *stubEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueCritical}, nil
}

func (s *stubEnqueuer) Close() error { return nil }

type stubInspector struct{}

func (stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: queue, Pending: 2, Retry: 1}, nil
}

func (stubInspector) Close() error { return nil }

type stubScanner struct {
	report jobs.IntegrityReport
	err    error
}

func (s stubScanner) Scan(ctx context.Context, prefix string) (jobs.IntegrityReport, error) {
	return s.report, s.err
}

func TestJobsTriggerVerify(t *testing.T) {
	enq := &stubEnqueuer{}
	c := &JobsCLI{client: enq, inspector: stubInspector{}}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

	code := c.Command(context.Background(), []string{"trigger", "verify", "--base", "COT-2501-0001", "--prior", "a", "--created", "b"}, stdout, stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Len(t, enq.tasks, 1)
	require.Equal(t, jobs.TaskQuotationVerifyState, enq.tasks[0].Type())
	require.Contains(t, stdout.String(), "enqueued quotation:verify_state")

	var payload jobs.VerifyStatePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, "COT-2501-0001", payload.BaseNumber)
}

func TestJobsTriggerRejectsIncompletePayload(t *testing.T) {
	c := &JobsCLI{client: &stubEnqueuer{}}
	stderr := new(bytes.Buffer)
	code := c.Command(context.Background(), []string{"trigger", "verify", "--base", "COT-1"}, new(bytes.Buffer), stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "prior id required")

	code = c.Command(context.Background(), []string{"trigger", "reindex"}, new(bytes.Buffer), stderr)
	require.Equal(t, 1, code)
}

func TestJobsStats(t *testing.T) {
	c := &JobsCLI{client: &stubEnqueuer{}, inspector: stubInspector{}}
	stdout := new(bytes.Buffer)
	code := c.Command(context.Background(), []string{"stats", "--queue", jobs.QueueCritical}, stdout, new(bytes.Buffer))
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "queue=critical pending=2")
}

func TestIntegrityCommand(t *testing.T) {
	stdout := new(bytes.Buffer)
	code := IntegrityCommand(context.Background(), stubScanner{report: jobs.IntegrityReport{Bases: 3}}, IntegrityOptions{JSONOutput: true, Stdout: stdout})
	require.Equal(t, 0, code)
	var summary IntegritySummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.OK)
	require.Equal(t, []string{}, summary.NoneActive)

	stdout.Reset()
	code = IntegrityCommand(context.Background(), stubScanner{report: jobs.IntegrityReport{Bases: 2, MultipleActive: []string{"COT-1"}}}, IntegrityOptions{Stdout: stdout})
	require.Equal(t, 10, code)
	require.Contains(t, stdout.String(), "COT-1: more than one active version")

	code = IntegrityCommand(context.Background(), stubScanner{err: errors.New("db down")}, IntegrityOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 1, code)
}
