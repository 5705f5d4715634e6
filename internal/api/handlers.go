package api

import (
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geodata/internal/crs"
	"github.com/sells-group/geodata/internal/format"
	"github.com/sells-group/geodata/internal/geodata"
	"github.com/sells-group/geodata/internal/model"
	"github.com/sells-group/geodata/internal/store"
)

type formatInfo struct {
	Name        string `json:"name"`
	Extension   string `json:"extension"`
	ContentType string `json:"content_type"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFormats(w http.ResponseWriter, _ *http.Request) {
	out := make([]formatInfo, 0, len(format.Exports))
	for _, f := range format.Exports {
		out = append(out, formatInfo{Name: f.String(), Extension: f.Extension(), ContentType: f.ContentType()})
	}
	writeJSON(w, http.StatusOK, out)
}

// load stages the request's dataset and reads it into a fresh adapter.
func (s *Server) load(w http.ResponseWriter, r *http.Request) (*geodata.Adapter, *input, error) {
	in, err := s.stage(w, r)
	if err != nil {
		return nil, nil, err
	}

	opts := geodata.ReadOptions{Format: in.Params["format"]}
	if v := in.Params["crs"]; v != "" {
		c, err := crs.Parse(v)
		if err != nil {
			in.Cleanup()
			return nil, nil, err
		}
		opts.CRS = c
	}

	a := s.opts.NewAdapter()
	if err := a.Read(r.Context(), in.Path, opts); err != nil {
		a.Close()
		in.Cleanup()
		return nil, nil, err
	}
	return a, in, nil
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	a, in, err := s.load(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer in.Cleanup()
	defer a.Close()

	sum, err := a.Summary(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	a, in, err := s.load(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer in.Cleanup()
	defer a.Close()

	target, err := format.Parse(in.Params["to"])
	if err != nil || !target.Exportable() {
		s.fail(w, r, eris.Wrapf(format.ErrUnknownFormat, "api: cannot export to %q", in.Params["to"]))
		return
	}

	ds, _ := a.Dataset()
	var run *model.Run
	if s.opts.Journal != nil {
		run, err = s.opts.Journal.CreateRun(r.Context(), in.Name, target.String())
		if err != nil {
			s.log.Warn("journal: create run failed", zap.Error(err))
		}
	}

	b, err := s.convert(r, a, target, in.Params)
	if run != nil {
		res := store.RunResult{Features: len(ds.Features), Bytes: int64(len(b)), CRS: ds.CRS.String(), Err: err}
		if ferr := s.opts.Journal.FinishRun(r.Context(), run.ID, res); ferr != nil {
			s.log.Warn("journal: finish run failed", zap.String("run_id", run.ID), zap.Error(ferr))
		}
		w.Header().Set("X-Run-ID", run.ID)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", target.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": ds.Name + target.Extension()}))
	w.Header().Set(headerFeatureCount, strconv.Itoa(len(ds.Features)))
	w.WriteHeader(http.StatusOK)
	w.Write(b) //nolint:errcheck
}

func (s *Server) convert(r *http.Request, a *geodata.Adapter, target format.Format, params map[string]string) ([]byte, error) {
	if isTrue(params["remove_overlap"]) {
		if _, err := a.RemoveOverlap(r.Context()); err != nil {
			return nil, err
		}
	}

	opts := geodata.ExportOptions{
		EnforceTopology: params["topology"] == "" || isTrue(params["topology"]),
		SQL:             geodata.SQLOptions{Schema: params["schema"], Table: params["table"]},
	}
	if v := params["target_crs"]; v != "" {
		c, err := crs.Parse(v)
		if err != nil {
			return nil, err
		}
		opts.CRS = c
	}
	return a.Export(r.Context(), target, opts)
}

func (s *Server) handleUnion(w http.ResponseWriter, r *http.Request) {
	a, in, err := s.load(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer in.Cleanup()
	defer a.Close()

	as, err := geodata.ParseUnionFormat(in.Params["as"])
	if err != nil {
		s.fail(w, r, eris.Wrap(errBadRequest, err.Error()))
		return
	}
	if as == geodata.UnionRaw {
		as = geodata.UnionGeoJSON
	}
	res, err := a.Union(r.Context(), as)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	ct := "application/geo+json"
	if as == geodata.UnionWKT {
		ct = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(res.Text)) //nolint:errcheck
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.opts.Journal == nil {
		writeError(w, r, http.StatusNotFound, "run journal disabled")
		return
	}

	q := r.URL.Query()
	filter := store.RunFilter{
		Status: model.RunStatus(q.Get("status")),
		Source: q.Get("source"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		s.fail(w, r, err)
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		s.fail(w, r, err)
		return
	}

	runs, err := s.opts.Journal.ListRuns(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.opts.Journal == nil {
		writeError(w, r, http.StatusNotFound, "run journal disabled")
		return
	}
	run, err := s.opts.Journal.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.Wrapf(errBadRequest, "api: invalid integer %q", v)
	}
	return n, nil
}

func isTrue(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}
