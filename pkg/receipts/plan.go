package receipts

import (
	"os"
	"path/filepath"

	"github.com/windowsadmins/cimian/pkg/plist"
	"github.com/windowsadmins/cimian/pkg/resolver"
)

// PlanEntry is one scheduled item in a persisted plan document.
type PlanEntry struct {
	Name    string `plist:"Name"`
	Version string `plist:"Version"`
}

// PlanProblem mirrors resolver.ProblemItem for plist serialization.
type PlanProblem struct {
	Name string `plist:"Name"`
	Note string `plist:"Note"`
}

// PlanDoc is the on-disk shape of InstallInfo.plist: written at the end
// of the check phase so a crashed session's intended work is
// diagnosable and resumable.
type PlanDoc struct {
	InstallList      []PlanEntry   `plist:"InstallList"`
	RemovalList      []PlanEntry   `plist:"RemovalList"`
	OptionalInstalls []PlanEntry   `plist:"OptionalInstalls"`
	ProblemItems     []PlanProblem `plist:"ProblemItems"`
}

// PlanStore persists the resolver's plan to a single plist path.
type PlanStore struct {
	Path string
}

// NewPlanStore opens a plan store at path.
func NewPlanStore(path string) *PlanStore {
	return &PlanStore{Path: path}
}

// ToDoc converts a resolver.Plan into its persisted shape.
func ToDoc(plan resolver.Plan) PlanDoc {
	doc := PlanDoc{}
	for _, item := range plan.InstallList {
		doc.InstallList = append(doc.InstallList, PlanEntry{Name: item.Name, Version: item.Version})
	}
	for _, item := range plan.RemovalList {
		doc.RemovalList = append(doc.RemovalList, PlanEntry{Name: item.Name, Version: item.Version})
	}
	for _, item := range plan.OptionalInstalls {
		doc.OptionalInstalls = append(doc.OptionalInstalls, PlanEntry{Name: item.Name, Version: item.Version})
	}
	for _, p := range plan.ProblemItems {
		doc.ProblemItems = append(doc.ProblemItems, PlanProblem{Name: p.Name, Note: p.Note})
	}
	return doc
}

// Save writes plan to disk, overwriting any prior plan.
func (s *PlanStore) Save(plan resolver.Plan) error {
	return s.SaveDoc(ToDoc(plan))
}

// SaveDoc writes an already-converted plan document, letting callers
// mutate entries (e.g. the executor dropping a completed item) without
// reaching back into a resolver.Plan.
func (s *PlanStore) SaveDoc(doc PlanDoc) error {
	data, err := plist.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.Path, data, 0o644)
}

// Load reads back a persisted plan document, returning an empty one if
// none has been written yet.
func (s *PlanStore) Load() (PlanDoc, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return PlanDoc{}, nil
	}
	if err != nil {
		return PlanDoc{}, err
	}
	var doc PlanDoc
	if err := plist.Unmarshal(data, &doc); err != nil {
		return PlanDoc{}, err
	}
	return doc, nil
}
