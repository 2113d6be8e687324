package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/appraisal/internal/adapters/repository"
	"github.com/okian/appraisal/internal/domain/model"
	"github.com/okian/appraisal/internal/domain/oracle"
)

type fakeMetadata struct {
	mu     sync.Mutex
	assets map[string]model.Asset
	calls  int
	err    error
	hook   func()
}

func newFakeMetadata() *fakeMetadata {
	return &fakeMetadata{assets: make(map[string]model.Asset)}
}

func (f *fakeMetadata) add(a model.Asset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[a.ID] = a
}

func (f *fakeMetadata) FetchMetadataBatch(_ context.Context, ids []string) ([]model.Asset, error) {
	f.mu.Lock()
	f.calls++
	err, hook := f.err, f.hook
	var out []model.Asset
	for _, id := range ids {
		if a, ok := f.assets[id]; ok {
			out = append(out, a)
		}
	}
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeMetadata) FetchAssetsByOwner(_ context.Context, _ string) ([]model.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Asset, 0, len(f.assets))
	for i := 0; i < len(f.assets); i++ {
		if a, ok := f.assets[assetID(i)]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeMetadata) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCollections struct {
	mu       sync.Mutex
	data     map[string]model.CollectionFloorData
	cached   map[string]model.CollectionFloorData
	resolved []string
	err      error
}

func newFakeCollections() *fakeCollections {
	return &fakeCollections{
		data:   make(map[string]model.CollectionFloorData),
		cached: make(map[string]model.CollectionFloorData),
	}
}

func (f *fakeCollections) Resolve(_ context.Context, id, name string) (model.CollectionFloorData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, id)
	if f.err != nil {
		return model.CollectionFloorData{}, f.err
	}
	d, ok := f.data[id]
	if !ok {
		d = model.CollectionFloorData{CollectionID: id, Name: name, TraitFloors: map[string]decimal.Decimal{}}
	}
	return d, nil
}

func (f *fakeCollections) Lookup(id string) (model.CollectionFloorData, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.cached[id]
	return d, ok
}

func (f *fakeCollections) resolveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.resolved)
}

type fakeSales struct {
	mu     sync.Mutex
	sales  map[string]model.SaleCandidate
	errors map[string]error
	calls  int
	hook   func()
}

func newFakeSales() *fakeSales {
	return &fakeSales{sales: make(map[string]model.SaleCandidate), errors: make(map[string]error)}
}

func (f *fakeSales) LastSale(_ context.Context, id string) (model.SaleCandidate, bool, error) {
	f.mu.Lock()
	f.calls++
	s, ok := f.sales[id]
	err := f.errors[id]
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return model.SaleCandidate{}, false, err
	}
	return s, ok, nil
}

func (f *fakeSales) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePrices struct {
	mu         sync.Mutex
	current    oracle.Quote
	historical oracle.Quote
	days       []time.Time
}

func (f *fakePrices) Current(context.Context) (oracle.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func (f *fakePrices) Historical(_ context.Context, day time.Time) (oracle.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.days = append(f.days, day)
	return f.historical, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.ReportEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.ReportEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// flakyStore fails Save once armed.
type flakyStore struct {
	repository.Store
	mu      sync.Mutex
	saveErr error
	saves   int
}

func (s *flakyStore) Save(ctx context.Context, r *model.Report) error {
	s.mu.Lock()
	s.saves++
	err := s.saveErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Save(ctx, r)
}

func (s *flakyStore) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

var errBoom = errors.New("boom")

func assetID(i int) string { return fmt.Sprintf("asset%03d", i) }

func testAsset(i int) model.Asset {
	return model.Asset{
		ID:             assetID(i),
		Name:           fmt.Sprintf("Asset #%d", i),
		CollectionID:   fmt.Sprintf("col%d", i%3),
		CollectionName: fmt.Sprintf("Collection %d", i%3),
		Attributes: []model.Attribute{
			{TraitType: "hat", Value: "crown"},
			{TraitType: "eyes", Value: "laser"},
		},
	}
}
