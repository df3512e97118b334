package schedule

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"clinic-scheduling-api/internal/model"
)

// -- mock stores --

type mockUsers struct {
	users map[string]*model.User
}

func (m *mockUsers) UserByID(_ context.Context, id string) (*model.User, error) {
	return m.users[id], nil
}

type mockAppts struct {
	appts map[string]*model.Appointment
	// when set, HasOverlap lies once, forcing the insert-time constraint
	// path (simulates a concurrent booking between check and insert)
	blindOnce bool
	// called on every ByID; lets tests hold a load mid-update
	byIDHook func()
}

func (m *mockAppts) conflicts(a *model.Appointment) bool {
	for _, b := range m.appts {
		if b.ID == a.ID || b.DoctorID != a.DoctorID || !b.Status.Active() {
			continue
		}
		if Overlaps(a.StartAt, a.EndAt, b.StartAt, b.EndAt) {
			return true
		}
	}
	return false
}

func (m *mockAppts) Insert(_ context.Context, a *model.Appointment) error {
	if a.Status.Active() && m.conflicts(a) {
		return ErrSlotConflict
	}
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockAppts) ByID(_ context.Context, id string) (*model.Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	if m.byIDHook != nil {
		m.byIDHook()
	}
	return &cp, nil
}

func (m *mockAppts) Update(_ context.Context, a *model.Appointment) error {
	if a.Status.Active() && m.conflicts(a) {
		return ErrSlotConflict
	}
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockAppts) HasOverlap(_ context.Context, doctorID string, start, end time.Time, excludeID string) (bool, error) {
	if m.blindOnce {
		m.blindOnce = false
		return false, nil
	}
	for _, b := range m.appts {
		if b.ID == excludeID || b.DoctorID != doctorID || !b.Status.Active() {
			continue
		}
		if Overlaps(start, end, b.StartAt, b.EndAt) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockAppts) ListForUser(_ context.Context, userID string, role model.Role, f ListFilter) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range m.appts {
		if role == model.RoleDoctor && a.DoctorID != userID {
			continue
		}
		if role == model.RolePatient && a.PatientID != userID {
			continue
		}
		if f.From != nil && a.StartAt.Before(*f.From) {
			continue
		}
		if f.To != nil && a.StartAt.After(*f.To) {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

// -- fixtures --

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	users   *mockUsers
	appts   *mockAppts
	doctor  *model.User
	patient *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	doctor := &model.User{ID: uuid.New().String(), Name: "Dr. Adeyemi", Role: model.RoleDoctor, Specialization: "cardiology"}
	patient := &model.User{ID: uuid.New().String(), Name: "Amina", Role: model.RolePatient}

	users := &mockUsers{users: map[string]*model.User{doctor.ID: doctor, patient.ID: patient}}
	appts := &mockAppts{appts: map[string]*model.Appointment{}}

	svc := NewService(users, appts, 60)
	svc.now = func() time.Time { return testNow }

	return &fixture{svc: svc, users: users, appts: appts, doctor: doctor, patient: patient}
}

func (f *fixture) book(t *testing.T, startOffset time.Duration, minutes int) *model.Appointment {
	t.Helper()
	a, err := f.svc.Book(context.Background(), BookingRequest{
		PatientID:       f.patient.ID,
		DoctorID:        f.doctor.ID,
		StartAt:         testNow.Add(startOffset),
		DurationMinutes: minutes,
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	return a
}

// -- booking --

func TestBook(t *testing.T) {
	f := newFixture(t)

	start := testNow.Add(22 * time.Hour) // tomorrow 10:00
	a, err := f.svc.Book(context.Background(), BookingRequest{
		PatientID:       f.patient.ID,
		DoctorID:        f.doctor.ID,
		StartAt:         start,
		DurationMinutes: 30,
		Reason:          "checkup",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if a.ID == "" {
		t.Fatal("empty id")
	}
	if a.Status != model.StatusPending {
		t.Errorf("status = %s, want pending", a.Status)
	}
	if want := start.Add(30 * time.Minute); !a.EndAt.Equal(want) {
		t.Errorf("endAt = %s, want %s", a.EndAt, want)
	}
}

func TestBookDoctorNotFound(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		doctorID string
	}{
		{"unknown id", uuid.New().String()},
		{"patient as doctor", f.patient.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Book(context.Background(), BookingRequest{
				PatientID:       f.patient.ID,
				DoctorID:        tt.doctorID,
				StartAt:         testNow.Add(time.Hour),
				DurationMinutes: 30,
			})
			if !errors.Is(err, ErrDoctorNotFound) {
				t.Errorf("err = %v, want ErrDoctorNotFound", err)
			}
		})
	}
}

func TestBookDoctorResolvedFirst(t *testing.T) {
	f := newFixture(t)

	// unknown doctor combined with a bad duration and a past start:
	// doctor resolution short-circuits before any slot validation
	_, err := f.svc.Book(context.Background(), BookingRequest{
		PatientID:       f.patient.ID,
		DoctorID:        uuid.New().String(),
		StartAt:         testNow.Add(-time.Hour),
		DurationMinutes: 0,
	})
	if !errors.Is(err, ErrDoctorNotFound) {
		t.Fatalf("err = %v, want ErrDoctorNotFound", err)
	}
}

func TestBookPastStart(t *testing.T) {
	f := newFixture(t)

	for _, offset := range []time.Duration{0, -time.Minute, -24 * time.Hour} {
		_, err := f.svc.Book(context.Background(), BookingRequest{
			PatientID:       f.patient.ID,
			DoctorID:        f.doctor.ID,
			StartAt:         testNow.Add(offset),
			DurationMinutes: 30,
		})
		if !errors.Is(err, ErrPastStart) {
			t.Errorf("offset %v: err = %v, want ErrPastStart", offset, err)
		}
	}
}

func TestBookDurationBounds(t *testing.T) {
	f := newFixture(t)

	for _, minutes := range []int{0, 4, 481, -30} {
		_, err := f.svc.Book(context.Background(), BookingRequest{
			PatientID:       f.patient.ID,
			DoctorID:        f.doctor.ID,
			StartAt:         testNow.Add(time.Hour),
			DurationMinutes: minutes,
		})
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("minutes %d: err = %v, want ValidationError", minutes, err)
		}
	}

	// inclusive bounds are legal
	f.book(t, time.Hour, 5)
	f.book(t, 48*time.Hour, 480)
}

func TestBookReasonTooLong(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Book(context.Background(), BookingRequest{
		PatientID:       f.patient.ID,
		DoctorID:        f.doctor.ID,
		StartAt:         testNow.Add(time.Hour),
		DurationMinutes: 30,
		Reason:          strings.Repeat("x", 501),
	})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestBookConflict(t *testing.T) {
	f := newFixture(t)
	f.book(t, 22*time.Hour, 30) // 10:00-10:30 next day

	_, err := f.svc.Book(context.Background(), BookingRequest{
		PatientID:       f.patient.ID,
		DoctorID:        f.doctor.ID,
		StartAt:         testNow.Add(22*time.Hour + 15*time.Minute), // 10:15-10:45
		DurationMinutes: 30,
	})
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("err = %v, want ErrSlotConflict", err)
	}
}

func TestBookTouchingSlotsDoNotConflict(t *testing.T) {
	f := newFixture(t)
	f.book(t, 22*time.Hour, 30)

	// starts exactly where the previous one ends
	if _, err := f.svc.Book(context.Background(), BookingRequest{
		PatientID:       f.patient.ID,
		DoctorID:        f.doctor.ID,
		StartAt:         testNow.Add(22*time.Hour + 30*time.Minute),
		DurationMinutes: 30,
	}); err != nil {
		t.Fatalf("touching slot rejected: %v", err)
	}
}

func TestBookInactiveStatusesDoNotConflict(t *testing.T) {
	f := newFixture(t)

	for _, st := range []model.Status{model.StatusCancelled, model.StatusCompleted} {
		f.appts.appts[uuid.New().String()] = &model.Appointment{
			ID:       uuid.New().String(),
			DoctorID: f.doctor.ID,
			StartAt:  testNow.Add(22 * time.Hour),
			EndAt:    testNow.Add(22*time.Hour + 30*time.Minute),
			Status:   st,
		}
	}

	if _, err := f.svc.Book(context.Background(), BookingRequest{
		PatientID:       f.patient.ID,
		DoctorID:        f.doctor.ID,
		StartAt:         testNow.Add(22 * time.Hour),
		DurationMinutes: 30,
	}); err != nil {
		t.Fatalf("slot held only by inactive appointments rejected: %v", err)
	}
}

func TestBookRaceCaughtByStore(t *testing.T) {
	f := newFixture(t)
	f.book(t, 22*time.Hour, 30)

	// the overlap check misses the existing booking; the store constraint
	// must still reject the insert
	f.appts.blindOnce = true
	_, err := f.svc.Book(context.Background(), BookingRequest{
		PatientID:       f.patient.ID,
		DoctorID:        f.doctor.ID,
		StartAt:         testNow.Add(22*time.Hour + 15*time.Minute),
		DurationMinutes: 30,
	})
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("err = %v, want ErrSlotConflict", err)
	}
}

func TestCancelFreesSlot(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, 22*time.Hour, 30)

	_, err := f.svc.Update(context.Background(), a.ID,
		Caller{ID: f.patient.ID, Role: model.RolePatient},
		UpdateRequest{Action: "cancel"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// identical window books cleanly now
	f.book(t, 22*time.Hour, 30)
}

// -- updates --

func TestUpdateDoctorStatusAndNotes(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, 22*time.Hour, 30)

	confirmed := model.StatusConfirmed
	notes := "bring previous scans"
	got, err := f.svc.Update(context.Background(), a.ID,
		Caller{ID: f.doctor.ID, Role: model.RoleDoctor},
		UpdateRequest{Status: &confirmed, Notes: &notes})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Status != model.StatusConfirmed {
		t.Errorf("status = %s, want confirmed", got.Status)
	}
	if got.Notes != notes {
		t.Errorf("notes = %q, want %q", got.Notes, notes)
	}
}

func TestUpdateIllegalTransitions(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		from model.Status
		to   model.Status
	}{
		{"pending to completed", model.StatusPending, model.StatusCompleted},
		{"completed to pending", model.StatusCompleted, model.StatusPending},
		{"cancelled to confirmed", model.StatusCancelled, model.StatusConfirmed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := uuid.New().String()
			f.appts.appts[id] = &model.Appointment{
				ID:        id,
				PatientID: f.patient.ID,
				DoctorID:  f.doctor.ID,
				StartAt:   testNow.Add(22 * time.Hour),
				EndAt:     testNow.Add(22*time.Hour + 30*time.Minute),
				Status:    tt.from,
			}
			to := tt.to
			_, err := f.svc.Update(context.Background(), id,
				Caller{ID: f.doctor.ID, Role: model.RoleDoctor},
				UpdateRequest{Status: &to})
			var te *TransitionError
			if !errors.As(err, &te) {
				t.Errorf("err = %v, want TransitionError", err)
			}
		})
	}
}

func TestUpdateForbidden(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, 22*time.Hour, 30)

	otherDoctor := &model.User{ID: uuid.New().String(), Role: model.RoleDoctor, Specialization: "dermatology"}
	otherPatient := &model.User{ID: uuid.New().String(), Role: model.RolePatient}
	f.users.users[otherDoctor.ID] = otherDoctor
	f.users.users[otherPatient.ID] = otherPatient

	confirmed := model.StatusConfirmed
	if _, err := f.svc.Update(context.Background(), a.ID,
		Caller{ID: otherDoctor.ID, Role: model.RoleDoctor},
		UpdateRequest{Status: &confirmed}); !errors.Is(err, ErrForbidden) {
		t.Errorf("other doctor: err = %v, want ErrForbidden", err)
	}

	if _, err := f.svc.Update(context.Background(), a.ID,
		Caller{ID: otherPatient.ID, Role: model.RolePatient},
		UpdateRequest{Action: "cancel"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("other patient: err = %v, want ErrForbidden", err)
	}
}

func TestUpdatePatientInvalidAction(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, 22*time.Hour, 30)

	for _, action := range []string{"", "confirm", "delete"} {
		_, err := f.svc.Update(context.Background(), a.ID,
			Caller{ID: f.patient.ID, Role: model.RolePatient},
			UpdateRequest{Action: action})
		if !errors.Is(err, ErrInvalidAction) {
			t.Errorf("action %q: err = %v, want ErrInvalidAction", action, err)
		}
	}
}

func TestCancelWindow(t *testing.T) {
	tests := []struct {
		name        string
		startOffset time.Duration
		wantErr     bool
	}{
		{"well outside cutoff", 3 * time.Hour, false},
		{"exactly at cutoff", 60 * time.Minute, false}, // boundary instant still allowed
		{"inside cutoff", 59 * time.Minute, true},
		{"one second inside", 60*time.Minute - time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			a := f.book(t, tt.startOffset, 30)
			_, err := f.svc.Update(context.Background(), a.ID,
				Caller{ID: f.patient.ID, Role: model.RolePatient},
				UpdateRequest{Action: "cancel"})

			var cw *CancelWindowError
			if tt.wantErr {
				if !errors.As(err, &cw) {
					t.Fatalf("err = %v, want CancelWindowError", err)
				}
				if !strings.Contains(err.Error(), "60") {
					t.Errorf("message should name the cutoff minutes: %q", err.Error())
				}
			} else if err != nil {
				t.Fatalf("cancel: %v", err)
			}
		})
	}
}

func TestConcurrentUpdatesLastWriteWins(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, 22*time.Hour, 30)

	// gate the first updater between its load and its write
	loaded := make(chan struct{})
	release := make(chan struct{})
	first := true
	f.appts.byIDHook = func() {
		if first {
			first = false
			close(loaded)
			<-release
		}
	}

	notes := "fasting bloodwork first"
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Update(context.Background(), a.ID,
			Caller{ID: f.doctor.ID, Role: model.RoleDoctor},
			UpdateRequest{Notes: &notes})
		done <- err
	}()
	<-loaded

	// a second update runs start to finish while the first holds its
	// stale copy
	confirmed := model.StatusConfirmed
	if _, err := f.svc.Update(context.Background(), a.ID,
		Caller{ID: f.doctor.ID, Role: model.RoleDoctor},
		UpdateRequest{Status: &confirmed}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("notes update: %v", err)
	}

	// last write wins wholesale: the stale writer's record lands intact,
	// so the interleaved confirmation is lost
	got := f.appts.appts[a.ID]
	if got.Notes != notes {
		t.Errorf("notes = %q, want %q", got.Notes, notes)
	}
	if got.Status != model.StatusPending {
		t.Errorf("status = %s, want pending (confirmation overwritten)", got.Status)
	}
}

func TestUpdateNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Update(context.Background(), uuid.New().String(),
		Caller{ID: f.patient.ID, Role: model.RolePatient},
		UpdateRequest{Action: "cancel"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// -- retrieval --

func TestGet(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, 22*time.Hour, 30)

	for _, caller := range []Caller{
		{ID: f.patient.ID, Role: model.RolePatient},
		{ID: f.doctor.ID, Role: model.RoleDoctor},
	} {
		got, err := f.svc.Get(context.Background(), a.ID, caller)
		if err != nil {
			t.Fatalf("get as %s: %v", caller.Role, err)
		}
		if got.ID != a.ID {
			t.Errorf("got wrong appointment")
		}
	}

	stranger := Caller{ID: uuid.New().String(), Role: model.RolePatient}
	if _, err := f.svc.Get(context.Background(), a.ID, stranger); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger: err = %v, want ErrForbidden", err)
	}

	if _, err := f.svc.Get(context.Background(), uuid.New().String(),
		Caller{ID: f.patient.ID, Role: model.RolePatient}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing: err = %v, want ErrNotFound", err)
	}
}

func TestListSortedAndScoped(t *testing.T) {
	f := newFixture(t)

	// book out of order
	f.book(t, 30*time.Hour, 30)
	f.book(t, 22*time.Hour, 30)
	f.book(t, 26*time.Hour, 30)

	// another patient's appointment with a different doctor
	otherDoctor := &model.User{ID: uuid.New().String(), Role: model.RoleDoctor, Specialization: "neurology"}
	f.users.users[otherDoctor.ID] = otherDoctor
	id := uuid.New().String()
	f.appts.appts[id] = &model.Appointment{
		ID: id, PatientID: uuid.New().String(), DoctorID: otherDoctor.ID,
		StartAt: testNow.Add(23 * time.Hour), EndAt: testNow.Add(24 * time.Hour),
		Status: model.StatusPending,
	}

	got, err := f.svc.List(context.Background(),
		Caller{ID: f.patient.ID, Role: model.RolePatient}, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 (caller-scoped)", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].StartAt.Before(got[i-1].StartAt) {
			t.Fatalf("not sorted ascending by startAt")
		}
	}
}

func TestListFilters(t *testing.T) {
	f := newFixture(t)
	a1 := f.book(t, 22*time.Hour, 30)
	f.book(t, 46*time.Hour, 30)

	// cancel the first
	if _, err := f.svc.Update(context.Background(), a1.ID,
		Caller{ID: f.patient.ID, Role: model.RolePatient},
		UpdateRequest{Action: "cancel"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	caller := Caller{ID: f.patient.ID, Role: model.RolePatient}

	cancelled := model.StatusCancelled
	got, err := f.svc.List(context.Background(), caller, ListFilter{Status: &cancelled})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != a1.ID {
		t.Fatalf("status filter: got %d results", len(got))
	}

	from := testNow.Add(40 * time.Hour)
	got, err = f.svc.List(context.Background(), caller, ListFilter{From: &from})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("from filter: got %d results, want 1", len(got))
	}

	to := testNow.Add(40 * time.Hour)
	got, err = f.svc.List(context.Background(), caller, ListFilter{To: &to})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != a1.ID {
		t.Fatalf("to filter: got %d results, want 1", len(got))
	}

	bad := model.Status("archived")
	if _, err := f.svc.List(context.Background(), caller, ListFilter{Status: &bad}); err == nil {
		t.Fatal("expected validation error for unknown status")
	}
}
