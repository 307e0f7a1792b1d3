package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/circlesync/internal/engine"
	"github.com/roach88/circlesync/internal/ir"
	"github.com/roach88/circlesync/internal/store"
	"github.com/roach88/circlesync/internal/testutil"
)

// Harness executes scenario steps against a real engine.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	clock  *testutil.DeterministicClock

	// watermarks holds the last pull timestamp per "user/circle".
	watermarks map[string]ir.Timestamp
}

// Run executes a scenario and returns its result.
//
// Each scenario runs in a fresh in-memory database on a deterministic clock
// and sequential id generator, so two runs produce identical traces.
// A returned error means the scenario could not be executed at all; failed
// expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	clock := testutil.NewDeterministicClock()
	eng, err := engine.New(ctx, st,
		engine.WithClock(clock),
		engine.WithIDGenerator(testutil.NewSequentialIDGenerator("id")),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	h := &Harness{
		store:      st,
		engine:     eng,
		clock:      clock,
		watermarks: make(map[string]ir.Timestamp),
	}

	if err := h.setup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, step.Op, err)
		}
	}

	actx := &AssertionContext{Ctx: ctx, Store: st, Engine: eng}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) setup(ctx context.Context, s *Scenario) error {
	for _, id := range s.Users {
		if _, err := h.engine.CreateUser(ctx, ir.User{ID: id, Name: id, Email: id + "@example.com"}); err != nil {
			return fmt.Errorf("user %s: %w", id, err)
		}
	}
	for _, c := range s.Circles {
		name := c.Name
		if name == "" {
			name = c.ID
		}
		if _, err := h.engine.CreateCircle(ctx, ir.Circle{ID: c.ID, Name: name}, c.Admin); err != nil {
			return fmt.Errorf("circle %s: %w", c.ID, err)
		}
		for _, m := range c.Members {
			if err := h.engine.AddMember(ctx, c.ID, m, ir.RoleMember); err != nil {
				return fmt.Errorf("circle %s member %s: %w", c.ID, m, err)
			}
		}
	}
	return nil
}

// executeStep runs one step, records it in the trace and checks its
// expectations. Request-level engine errors are part of the trace; any
// other error aborts the scenario.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	ev := TraceEvent{Op: step.Op, As: step.As, Circle: step.Circle}
	var err error

	switch step.Op {
	case OpPush:
		err = h.push(ctx, index, step, &ev, result)
	case OpPull:
		err = h.pull(ctx, index, step, &ev, result)
	case OpFullSync:
		err = h.fullSync(ctx, index, step, &ev, result)
	case OpAddMember:
		ev.Items = []string{"member:" + step.User}
		err = h.engine.AddMember(ctx, step.Circle, step.User, step.Role)
	case OpRemoveMember:
		ev.Items = []string{"member:" + step.User}
		err = h.engine.RemoveMember(ctx, step.Circle, step.User)
	case OpSealLetter:
		err = h.seal(ctx, step, &ev)
	case OpVerify:
		err = h.verify(ctx, index, step, &ev, result)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	if err != nil {
		code := engine.CodeOf(err)
		if code == "" && !engine.IsBatchTooLarge(err) {
			return err
		}
		if code == "" {
			code = engine.ErrCodeValidation
		}
		ev.Error = string(code)
	}
	result.addTrace(ev)

	want := ""
	if step.Expect != nil {
		want = step.Expect.Error
	}
	if ev.Error != want {
		result.AddError(fmt.Sprintf("steps[%d] (%s): expected error %q, got %q", index, step.Op, want, ev.Error))
	}
	return nil
}

func (h *Harness) push(ctx context.Context, index int, step Step, ev *TraceEvent, result *Result) error {
	changes := make([]ir.PushChange, len(step.Changes))
	for i, c := range step.Changes {
		ch := ir.PushChange{
			EntityType: ir.EntityType(c.Type),
			EntityID:   c.ID,
			Action:     ir.Action(c.Action),
			Timestamp:  h.clock.Current().String(),
		}
		if c.Data != nil {
			data, err := json.Marshal(c.Data)
			if err != nil {
				return fmt.Errorf("changes[%d]: %w", i, err)
			}
			ch.Data = data
		}
		changes[i] = ch
	}

	resp, err := h.engine.Push(ctx, step.Circle, step.As, changes)
	if err != nil {
		return err
	}

	ev.ServerTimestamp = resp.ServerTimestamp.String()
	for _, r := range resp.Results {
		item := r.EntityID + ":" + string(r.Status)
		if r.Message != "" {
			item += ":" + r.Message
		}
		ev.Items = append(ev.Items, item)
	}

	if step.Expect == nil || step.Expect.Results == nil {
		return nil
	}
	if len(step.Expect.Results) != len(resp.Results) {
		result.AddError(fmt.Sprintf("steps[%d] (push): expected %d results, got %d",
			index, len(step.Expect.Results), len(resp.Results)))
		return nil
	}
	for i, want := range step.Expect.Results {
		got := resp.Results[i]
		if string(got.Status) != want.Status {
			result.AddError(fmt.Sprintf("steps[%d] (push): results[%d] %s: expected status %s, got %s (%s)",
				index, i, got.EntityID, want.Status, got.Status, got.Message))
		}
		if want.Message != "" && got.Message != want.Message {
			result.AddError(fmt.Sprintf("steps[%d] (push): results[%d] %s: expected message %q, got %q",
				index, i, got.EntityID, want.Message, got.Message))
		}
	}
	return nil
}

func (h *Harness) pull(ctx context.Context, index int, step Step, ev *TraceEvent, result *Result) error {
	key := step.As + "/" + step.Circle

	var since *ir.Timestamp
	switch step.Since {
	case "":
	case SinceWatermark:
		if wm, ok := h.watermarks[key]; ok {
			since = &wm
		}
	default:
		ts, err := ir.ParseTimestamp(step.Since)
		if err != nil {
			return err
		}
		since = &ts
	}

	resp, err := h.engine.Pull(ctx, step.Circle, step.As, since, step.Limit)
	if err != nil {
		return err
	}
	h.watermarks[key] = resp.ServerTimestamp

	ev.ServerTimestamp = resp.ServerTimestamp.String()
	ev.HasMore = resp.HasMore
	for _, c := range resp.Changes {
		ev.Items = append(ev.Items, fmt.Sprintf("%s:%s:%s@%s", c.EntityType, c.EntityID, c.Action, c.Timestamp))
	}

	if exp := step.Expect; exp != nil {
		checkCount(result, index, step.Op, "changes", exp.Changes, len(resp.Changes))
		if exp.HasMore != nil && *exp.HasMore != resp.HasMore {
			result.AddError(fmt.Sprintf("steps[%d] (pull): expected has_more %v, got %v", index, *exp.HasMore, resp.HasMore))
		}
	}
	return nil
}

func (h *Harness) fullSync(ctx context.Context, index int, step Step, ev *TraceEvent, result *Result) error {
	snap, err := h.engine.FullSync(ctx, step.Circle, step.As)
	if err != nil {
		return err
	}

	ev.ServerTimestamp = snap.ServerTimestamp.String()
	for _, m := range snap.Members {
		ev.Items = append(ev.Items, "member:"+m.UserID)
	}
	for _, m := range snap.Moments {
		ev.Items = append(ev.Items, "moment:"+m.ID)
	}
	for _, l := range snap.Letters {
		ev.Items = append(ev.Items, "letter:"+l.ID)
	}
	for _, c := range snap.Comments {
		ev.Items = append(ev.Items, "comment:"+c.ID)
	}

	if exp := step.Expect; exp != nil {
		checkCount(result, index, step.Op, "members", exp.Members, len(snap.Members))
		checkCount(result, index, step.Op, "moments", exp.Moments, len(snap.Moments))
		checkCount(result, index, step.Op, "letters", exp.Letters, len(snap.Letters))
		checkCount(result, index, step.Op, "comments", exp.Comments, len(snap.Comments))
	}
	return nil
}

func (h *Harness) seal(ctx context.Context, step Step, ev *TraceEvent) error {
	var unlock *string
	if step.UnlockDate != "" {
		unlock = &step.UnlockDate
	}
	l, err := h.engine.SealLetter(ctx, step.Letter, step.As, unlock)
	if err != nil {
		return err
	}
	ev.Circle = l.CircleID
	ev.Items = []string{"letter:" + l.ID + ":" + l.Status}
	return nil
}

func (h *Harness) verify(ctx context.Context, index int, step Step, ev *TraceEvent, result *Result) error {
	report, err := h.engine.Verify(ctx, step.Circle)
	if err != nil {
		return err
	}
	for _, is := range report.Issues {
		ev.Items = append(ev.Items, fmt.Sprintf("%s:%s: %s", is.EntityType, is.EntityID, is.Message))
	}
	if step.Expect != nil {
		checkCount(result, index, step.Op, "issues", step.Expect.Issues, len(report.Issues))
	}
	return nil
}

func checkCount(result *Result, index int, op, what string, want *int, got int) {
	if want != nil && *want != got {
		result.AddError(fmt.Sprintf("steps[%d] (%s): expected %d %s, got %d", index, op, *want, what, got))
	}
}
