// Package providertest offers an in-memory provider.Client for tests.
package providertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/proctor/internal/provider"
)

// Fake is a scriptable provider.Client. Zero values return empty results.
// IndexFace registers the face so a later SearchFaces with the same image
// bytes matches it, which lets enroll-then-verify flows run end to end.
type Fake struct {
	mu sync.Mutex

	Faces            []provider.FaceDetail
	FacesErr         error
	Labels           []provider.Label
	LabelsErr        error
	ModerationLabels []provider.ModerationLabel
	ModerationErr    error
	SearchErr        error
	IndexErr         error
	RemoveErr        error

	// Block, when non-nil, makes every call wait for it to close or for the
	// context to end, whichever happens first.
	Block chan struct{}
	// IgnoreContext makes Block ignore context cancellation.
	IgnoreContext bool

	indexed map[string]provider.IndexedFace
	calls   map[string]int
	removed []string
	nextID  int
}

func (f *Fake) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[method]++
}

// Calls returns how many times method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Removed returns the face ids passed to RemoveFaces.
func (f *Fake) Removed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

// IndexedCount returns the number of faces currently indexed.
func (f *Fake) IndexedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.indexed)
}

func (f *Fake) wait(ctx context.Context) error {
	if f.Block == nil {
		return nil
	}
	if f.IgnoreContext {
		<-f.Block
		return nil
	}
	select {
	case <-f.Block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fake) DetectFaces(ctx context.Context, image []byte) ([]provider.FaceDetail, error) {
	f.record("DetectFaces")
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.Faces, f.FacesErr
}

func (f *Fake) DetectLabels(ctx context.Context, image []byte, minConfidence float64) ([]provider.Label, error) {
	f.record("DetectLabels")
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.Labels, f.LabelsErr
}

func (f *Fake) DetectModerationLabels(ctx context.Context, image []byte, minConfidence float64) ([]provider.ModerationLabel, error) {
	f.record("DetectModerationLabels")
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.ModerationLabels, f.ModerationErr
}

func (f *Fake) SearchFaces(ctx context.Context, collectionID string, image []byte, threshold float64, maxFaces int) ([]provider.FaceMatch, error) {
	f.record("SearchFaces")
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	face, ok := f.indexed[collectionID+"/"+string(image)]
	if !ok {
		return nil, provider.ErrNoFaceMatch
	}
	return []provider.FaceMatch{{FaceID: face.FaceID, ExternalImageID: face.ExternalImageID, Similarity: 99.9}}, nil
}

func (f *Fake) IndexFace(ctx context.Context, collectionID, externalImageID string, image []byte) ([]provider.IndexedFace, error) {
	f.record("IndexFace")
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.IndexErr != nil {
		return nil, f.IndexErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexed == nil {
		f.indexed = map[string]provider.IndexedFace{}
	}
	f.nextID++
	face := provider.IndexedFace{FaceID: fmt.Sprintf("face-%d", f.nextID), ExternalImageID: externalImageID}
	f.indexed[collectionID+"/"+string(image)] = face
	return []provider.IndexedFace{face}, nil
}

func (f *Fake) RemoveFaces(ctx context.Context, collectionID string, faceIDs []string) error {
	f.record("RemoveFaces")
	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, faceIDs...)
	for key, face := range f.indexed {
		for _, id := range faceIDs {
			if face.FaceID == id {
				delete(f.indexed, key)
			}
		}
	}
	return nil
}

// SingleFace returns a face with every attribute readable and truthy.
func SingleFace() provider.FaceDetail {
	yes := true
	return provider.FaceDetail{
		Confidence: 99.9,
		EyesOpen:   &yes,
		MouthOpen:  &yes,
		Pose:       &provider.Pose{Pitch: 3.2, Roll: -1.5, Yaw: 7},
		Emotions:   []provider.Emotion{{Type: "CALM", Confidence: 95}},
		Landmarks:  []provider.Landmark{{Type: "eyeLeft", X: 0.4, Y: 0.35}},
	}
}
