package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/janelia-flyem/mrf/datastore"
	"github.com/janelia-flyem/mrf/dvid"
	"github.com/janelia-flyem/mrf/mrf"

	"github.com/dustin/go-humanize"
	"github.com/twinj/uuid"
)

var errBadInput = errors.New("bad relaxation input")

const relaxSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["responsibilities", "priors", "interaction"],
	"additionalProperties": false,
	"properties": {
		"responsibilities": {"$ref": "#/definitions/name"},
		"priors": {"$ref": "#/definitions/name"},
		"interaction": {"$ref": "#/definitions/name"},
		"output": {"$ref": "#/definitions/name"},
		"anisotropy": {"$ref": "#/definitions/triple"},
		"voxelsize": {"$ref": "#/definitions/triple"},
		"steps": {"type": "integer", "minimum": 1},
		"workers": {"type": "integer", "minimum": 0}
	},
	"not": {"required": ["anisotropy", "voxelsize"]},
	"definitions": {
		"name": {"type": "string", "minLength": 1, "pattern": "^[^/\\\\]+$"},
		"triple": {
			"type": "array",
			"items": {"type": "number", "minimum": 0},
			"minItems": 3,
			"maxItems": 3
		}
	}
}`

// RelaxRequest names the stored volumes for a relaxation job.
type RelaxRequest struct {
	Responsibilities string    `json:"responsibilities"`
	Priors           string    `json:"priors"`
	Interaction      string    `json:"interaction"`
	Output           string    `json:"output,omitempty"`
	Anisotropy       []float32 `json:"anisotropy,omitempty"`
	VoxelSize        []float32 `json:"voxelsize,omitempty"`
	Steps            int       `json:"steps,omitempty"`
	Workers          int       `json:"workers,omitempty"`
}

// RelaxResult is the response to a relaxation job.
type RelaxResult struct {
	ID              string
	Output          string
	Dims            [4]int
	Mode            string
	Steps           int
	Degenerate      int
	FirstDegenerate string `json:",omitempty"`
	Elapsed         string
	Milliseconds    int64
}

func (res *RelaxResult) activity() map[string]interface{} {
	return map[string]interface{}{
		"action":     "relax",
		"time":       time.Now().Unix(),
		"id":         res.ID,
		"output":     res.Output,
		"mode":       res.Mode,
		"steps":      res.Steps,
		"degenerate": res.Degenerate,
		"duration":   res.Milliseconds,
	}
}

// parseRelaxRequest validates the JSON body against the relax schema and the server
// limits.
func (s *Server) parseRelaxRequest(body []byte) (*RelaxRequest, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if err := s.schema.Validate(doc); err != nil {
		return nil, err
	}
	req := new(RelaxRequest)
	if err := json.Unmarshal(body, req); err != nil {
		return nil, err
	}
	if req.Output == "" {
		req.Output = req.Responsibilities
	}
	if req.Steps == 0 {
		req.Steps = 1
	}
	if req.Steps > s.config.maxSteps() {
		return nil, fmt.Errorf("%d steps requested, server allows at most %d", req.Steps, s.config.maxSteps())
	}
	return req, nil
}

func (req *RelaxRequest) options(defaultWorkers int) (mrf.Options, error) {
	opts := mrf.Options{InPlace: true, Workers: req.Workers}
	if opts.Workers == 0 {
		opts.Workers = defaultWorkers
	}
	switch {
	case req.Anisotropy != nil:
		w, err := mrf.NewAnisotropy(req.Anisotropy)
		if err != nil {
			return opts, err
		}
		opts.Anisotropy = &w
	case req.VoxelSize != nil:
		if len(req.VoxelSize) != 3 {
			return opts, fmt.Errorf("voxel size needs 3 values, got %v", req.VoxelSize)
		}
		w := mrf.AnisotropyFromVoxelSize(req.VoxelSize[0], req.VoxelSize[1], req.VoxelSize[2])
		opts.Anisotropy = &w
	}
	return opts, nil
}

// lockVolumes locks every named volume in sorted order, exclusively for the output,
// and returns the function that unlocks them.
func (s *Server) lockVolumes(output string, inputs ...string) func() {
	names := map[string]bool{output: true}
	for _, name := range inputs {
		if name != output {
			names[name] = false
		}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var unlocks []func()
	for _, name := range sorted {
		var l *sync.RWMutex = s.volumes.Lock(name)
		if names[name] {
			l.Lock()
			unlocks = append(unlocks, l.Unlock)
		} else {
			l.RLock()
			unlocks = append(unlocks, l.RUnlock)
		}
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// runRelax loads the named volumes, runs the requested steps and stores the result.
func (s *Server) runRelax(ctx context.Context, req *RelaxRequest) (*RelaxResult, error) {
	opts, err := req.options(s.config.Relax.Workers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadInput, err)
	}
	unlock := s.lockVolumes(req.Output, req.Responsibilities, req.Priors, req.Interaction)
	defer unlock()

	q, err := s.volumes.GetResponsibilities(req.Responsibilities)
	if err != nil {
		return nil, err
	}
	p, err := s.volumes.GetPriors(req.Priors)
	if err != nil {
		return nil, err
	}
	g, err := s.volumes.GetInteraction(req.Interaction)
	if err != nil {
		return nil, err
	}

	res := &RelaxResult{
		ID:     uuid.NewV4().String(),
		Output: req.Output,
		Dims:   [4]int{q.X, q.Y, q.Z, q.K},
		Mode:   g.Mode().String(),
		Steps:  req.Steps,
	}
	timedLog := dvid.NewTimeLog()
	dvid.Infof("Relax job %s: %d step(s) on %s responsibilities %q with %s interaction %q (%s)\n",
		res.ID, req.Steps, q.Dims, req.Responsibilities, g.Mode(), req.Interaction,
		humanize.Bytes(uint64(len(q.Data)+4*len(p.Data)+g.NumBytes())))

	out, err := mrf.RelaxSteps(ctx, q, p, g, req.Steps, opts)
	var degenerate *mrf.DegenerateError
	switch {
	case err == nil:
	case errors.As(err, &degenerate):
		res.Degenerate = degenerate.Count
		res.FirstDegenerate = degenerate.First.String()
	case errors.Is(err, mrf.ErrShape), errors.Is(err, mrf.ErrTooManyClasses), errors.Is(err, mrf.ErrDegeneratePrior):
		return nil, fmt.Errorf("%w: %v", errBadInput, err)
	default:
		return nil, err
	}
	if err := s.volumes.Put(req.Output, &datastore.Volume{Kind: datastore.Responsibilities, Q: out}); err != nil {
		return nil, err
	}
	elapsed := timedLog.Elapsed()
	res.Elapsed = elapsed.String()
	res.Milliseconds = elapsed.Milliseconds()
	timedLog.Infof("Relax job %s wrote %q with %d degenerate voxel updates", res.ID, req.Output, res.Degenerate)
	return res, nil
}
