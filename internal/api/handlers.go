package api

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tfomics/tfomics/pkg/cache"
	"github.com/tfomics/tfomics/pkg/errors"
	"github.com/tfomics/tfomics/pkg/genome"
	"github.com/tfomics/tfomics/pkg/mendel"
	"github.com/tfomics/tfomics/pkg/pipeline"
	"github.com/tfomics/tfomics/pkg/shuffle"
	"github.com/tfomics/tfomics/pkg/store"
)

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---------------------------------------------------------------------------
// Shuffle
// ---------------------------------------------------------------------------

type shuffleRequest struct {
	Sequence string `json:"sequence"`
	Count    int    `json:"count,omitempty"`
	Seed     int64  `json:"seed,omitempty"`
}

type shuffleResponse struct {
	Shuffles []string `json:"shuffles"`
}

func (s *Server) handleShuffle(w http.ResponseWriter, r *http.Request) {
	var req shuffleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}
	if req.Sequence == "" {
		s.badRequest(w, "sequence is required")
		return
	}
	if req.Count <= 0 {
		req.Count = 1
	}
	if req.Count > pipeline.MaxShuffles {
		s.badRequest(w, "count exceeds the maximum of "+strconv.Itoa(pipeline.MaxShuffles))
		return
	}
	if req.Seed == 0 {
		req.Seed = pipeline.DefaultSeed
	}

	rng := rand.New(rand.NewSource(req.Seed))
	resp := shuffleResponse{Shuffles: make([]string, 0, req.Count)}
	for i := 0; i < req.Count; i++ {
		shuffled, err := shuffle.Shuffle(req.Sequence, rng)
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp.Shuffles = append(resp.Shuffles, shuffled)
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// ---------------------------------------------------------------------------
// Allele-specific binding
// ---------------------------------------------------------------------------

type effectJSON struct {
	Chromosome string   `json:"chromosome"`
	Position   int      `json:"position"`
	EffectSize *float64 `json:"effect_size"`
	Stderr     *float64 `json:"stderr"`
	Samples    int      `json:"samples"`
}

type asbResponse struct {
	ID         string                  `json:"id"`
	Dataset    string                  `json:"dataset"`
	SNPs       int                     `json:"snps"`
	Candidates int                     `json:"candidates"`
	Effects    []effectJSON            `json:"effects"`
	Sequences  []pipeline.PeakSequence `json:"sequences,omitempty"`
}

func (s *Server) handleASB(w http.ResponseWriter, r *http.Request) {
	var opts pipeline.Options
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}

	// The configured genome applies unless the request names its own.
	if opts.GenomePath == "" && (opts.ApplySNPs || opts.Shuffles > 0) {
		opts.GenomePath = s.cfg.Genome.Path
		opts.GenomeName = s.cfg.Genome.Name
	}
	opts.Logger = s.logger

	if err := opts.ValidateAndSetDefaults(); err != nil {
		s.badRequest(w, err.Error())
		return
	}

	result, err := s.runner.Execute(r.Context(), opts)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := asbResponse{
		Dataset:    opts.Dataset,
		SNPs:       result.Stats.SNPCount,
		Candidates: result.Stats.CandidateCount,
		Effects:    make([]effectJSON, 0, len(result.Effects)),
		Sequences:  result.Sequences,
	}
	for _, e := range result.Effects {
		resp.Effects = append(resp.Effects, effectJSON{
			Chromosome: e.Chromosome,
			Position:   e.Position,
			EffectSize: jsonFloat(e.EffectSize),
			Stderr:     jsonFloat(e.Stderr),
			Samples:    e.Samples,
		})
	}

	if err := s.saveRun(r, store.KindASB, opts.Dataset, &resp.ID, &resp); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// ---------------------------------------------------------------------------
// Mendelian randomisation
// ---------------------------------------------------------------------------

type exposureJSON struct {
	SNP          string  `json:"snp"`
	Ref          string  `json:"ref"`
	Alt          string  `json:"alt"`
	Effect       float64 `json:"effect"`
	EffectStderr float64 `json:"effect_stderr"`
}

type gwasJSON struct {
	RSID   string  `json:"rsid"`
	Trait  string  `json:"trait"`
	Allele string  `json:"allele"`
	Beta   float64 `json:"beta"`
	Stderr float64 `json:"stderr"`
	MAF    float64 `json:"maf"`
	HWE    float64 `json:"hwe"`
	IScore float64 `json:"iscore"`
}

type mrOptionsJSON struct {
	MinMAF    float64  `json:"min_maf,omitempty"`
	MinHWE    float64  `json:"min_hwe,omitempty"`
	MinIScore float64  `json:"min_iscore,omitempty"`
	Traits    []string `json:"traits,omitempty"`
	Permute   bool     `json:"permute,omitempty"`
	Seed      int64    `json:"seed,omitempty"`
}

type mrRequest struct {
	Exposures []exposureJSON `json:"exposures"`
	GWAS      []gwasJSON     `json:"gwas"`
	Options   mrOptionsJSON  `json:"options"`
	Refresh   bool           `json:"refresh,omitempty"`
}

type mrResultJSON struct {
	SNP          string   `json:"snp"`
	Trait        string   `json:"trait"`
	EffectAllele string   `json:"effect_allele,omitempty"`
	Causal       *float64 `json:"causal"`
	Stderr       *float64 `json:"stderr"`
	Z            *float64 `json:"z"`
	P            *float64 `json:"p"`
	Q            *float64 `json:"q"`
}

type mrResponse struct {
	ID      string         `json:"id"`
	Cached  bool           `json:"cached"`
	Results []mrResultJSON `json:"results"`
}

func (s *Server) handleMR(w http.ResponseWriter, r *http.Request) {
	var req mrRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}
	if len(req.Exposures) == 0 {
		s.badRequest(w, "exposures are required")
		return
	}
	if len(req.GWAS) == 0 {
		s.badRequest(w, "gwas records are required")
		return
	}

	exposures := make([]mendel.Exposure, 0, len(req.Exposures))
	for _, e := range req.Exposures {
		exposures = append(exposures, mendel.Exposure{
			SNP: e.SNP, Ref: e.Ref, Alt: e.Alt,
			Effect: e.Effect, EffectStderr: e.EffectStderr,
		})
	}
	gwas := make([]mendel.GWASRecord, 0, len(req.GWAS))
	for _, g := range req.GWAS {
		gwas = append(gwas, mendel.GWASRecord{
			RSID: g.RSID, Trait: g.Trait, Allele: g.Allele,
			Beta: g.Beta, Stderr: g.Stderr,
			MAF: g.MAF, HWE: g.HWE, IScore: g.IScore,
		})
	}
	opts := mendel.Options{
		MinMAF:    req.Options.MinMAF,
		MinHWE:    req.Options.MinHWE,
		MinIScore: req.Options.MinIScore,
		Traits:    req.Options.Traits,
		Permute:   req.Options.Permute,
		Seed:      req.Options.Seed,
	}

	results, cached, err := s.runner.MR(r.Context(), exposures, gwas, opts, req.Refresh)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := mrResponse{
		Cached:  cached,
		Results: make([]mrResultJSON, 0, len(results)),
	}
	for _, res := range results {
		resp.Results = append(resp.Results, mrResultJSON{
			SNP:          res.SNP,
			Trait:        res.Trait,
			EffectAllele: res.EffectAllele,
			Causal:       jsonFloat(res.Causal),
			Stderr:       jsonFloat(res.Stderr),
			Z:            jsonFloat(res.Z),
			P:            jsonFloat(res.P),
			Q:            jsonFloat(res.Q),
		})
	}

	if err := s.saveRun(r, store.KindMR, "", &resp.ID, &resp); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// ---------------------------------------------------------------------------
// Sequence lookup
// ---------------------------------------------------------------------------

type sequenceResponse struct {
	Name     string `json:"name"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Sequence string `json:"sequence"`
}

func (s *Server) handleSequence(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Genome.Path == "" {
		s.writeError(w, errors.New(errors.ErrCodeUnsupported, "no reference genome configured"))
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		s.badRequest(w, "name is required")
		return
	}

	var start, end int
	if posParam := r.URL.Query().Get("pos"); posParam != "" {
		pos, err := strconv.Atoi(posParam)
		if err != nil {
			s.badRequest(w, "pos must be an integer")
			return
		}
		start, end = genome.PeakCoords(pos)
	} else {
		var err error
		if start, err = strconv.Atoi(r.URL.Query().Get("start")); err != nil {
			s.badRequest(w, "start must be an integer")
			return
		}
		if end, err = strconv.Atoi(r.URL.Query().Get("end")); err != nil {
			s.badRequest(w, "end must be an integer")
			return
		}
	}

	key := s.runner.Keyer.RegionKey(s.cfg.Genome.Name, name, start, end)
	if data, ok, _ := s.runner.Cache.Get(r.Context(), key); ok {
		s.writeJSON(w, http.StatusOK, sequenceResponse{
			Name: name, Start: start, End: end, Sequence: string(data),
		})
		return
	}

	gen, err := genome.Open(s.cfg.Genome.Path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer gen.Close()

	sequence, err := gen.Region(name, start, end)
	if err != nil {
		s.writeError(w, err)
		return
	}
	_ = s.runner.Cache.Set(r.Context(), key, []byte(sequence), cache.TTLRegion)

	s.writeJSON(w, http.StatusOK, sequenceResponse{
		Name: name, Start: start, End: end, Sequence: sequence,
	})
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

type runJSON struct {
	ID        string          `json:"id"`
	Kind      store.Kind      `json:"kind"`
	Dataset   string          `json:"dataset,omitempty"`
	CreatedAt string          `json:"created_at"`
	Result    json.RawMessage `json:"result,omitempty"`
}

func toRunJSON(run *store.Run, includeResult bool) runJSON {
	out := runJSON{
		ID:        run.ID,
		Kind:      run.Kind,
		Dataset:   run.Dataset,
		CreatedAt: run.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if includeResult {
		out.Result = json.RawMessage(run.Result)
	}
	return out
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	kind := store.Kind(r.URL.Query().Get("kind"))

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := s.store.List(r.Context(), kind, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]runJSON, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunJSON(run, false))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toRunJSON(run, true))
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// saveRun persists an analysis response. The run ID is written through
// id before the result is serialized, so the stored payload matches
// what the client receives.
func (s *Server) saveRun(r *http.Request, kind store.Kind, dataset string, id *string, result any) error {
	run := store.NewRun(kind, dataset, nil, nil)
	*id = run.ID

	data, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "serialize run result")
	}
	run.Result = data

	return s.store.Save(r.Context(), run)
}
