package cli

import (
	"errors"
	"testing"
	"time"
)

func TestPDFModelUpdate(t *testing.T) {
	updates := make(chan pdfProgressMsg, 16)
	finished := make(chan pdfDoneMsg, 1)
	m := newPDFModel("out.pdf", updates, finished, func() {})

	model, cmd := m.Update(pdfProgressMsg{written: 512, total: 1024})
	pm, ok := model.(pdfModel)
	if !ok {
		t.Fatalf("Update returned %T", model)
	}
	if pm.written != 512 || pm.total != 1024 {
		t.Errorf("progress not applied: written=%d total=%d", pm.written, pm.total)
	}
	if cmd == nil {
		t.Error("progress update must keep listening")
	}

	wantErr := errors.New("server said no")
	model, cmd = pm.Update(pdfDoneMsg{err: wantErr})
	pm = model.(pdfModel)
	if !pm.done {
		t.Error("done flag not set")
	}
	if !errors.Is(pm.err, wantErr) {
		t.Errorf("err = %v, want %v", pm.err, wantErr)
	}
	if cmd == nil {
		t.Error("done update must quit the program")
	}
}

// The download goroutine must never block once the UI stops draining:
// progress sends are dropped when the buffer is full, and the single
// done send fits the done channel's buffer.
func TestPDFProducerNeverBlocks(t *testing.T) {
	updates := make(chan pdfProgressMsg, 16)
	finished := make(chan pdfDoneMsg, 1)

	sent := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			select {
			case updates <- pdfProgressMsg{written: int64(i), total: 100}:
			default:
			}
		}
		finished <- pdfDoneMsg{err: errors.New("cancelled")}
		close(sent)
	}()

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("producer blocked with no consumer")
	}
}
