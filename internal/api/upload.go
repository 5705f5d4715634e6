package api

import (
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geodata/internal/fetcher"
)

// errBadRequest marks client input errors that map to 400.
var errBadRequest = eris.New("api: bad request")

const defaultUploadName = "upload.zip"

// input is a dataset staged on local disk for one request.
type input struct {
	Path   string
	Name   string
	Params map[string]string
	local  *fetcher.Local
	dir    string
}

func (in *input) Cleanup() {
	if in.local != nil {
		in.local.Cleanup()
	}
	if in.dir != "" {
		os.RemoveAll(in.dir) //nolint:errcheck
	}
}

// stage reads a multipart request and puts its dataset on disk. The dataset
// is either the "file" part or a remote "source" URL.
func (s *Server) stage(w http.ResponseWriter, r *http.Request) (*input, error) {
	if r.ContentLength > s.opts.MaxUploadBytes {
		return nil, eris.Wrapf(&http.MaxBytesError{Limit: s.opts.MaxUploadBytes}, "api: upload of %d bytes", r.ContentLength)
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, eris.Wrapf(errBadRequest, "api: expected multipart/form-data: %v", err)
	}

	in := &input{Params: make(map[string]string)}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			in.Cleanup()
			return nil, eris.Wrap(err, "api: read multipart body")
		}

		if part.FormName() == "file" {
			if in.Path != "" {
				part.Close()
				in.Cleanup()
				return nil, eris.Wrap(errBadRequest, "api: more than one file part")
			}
			if err := s.saveUpload(in, part); err != nil {
				part.Close()
				in.Cleanup()
				return nil, err
			}
			part.Close()
			continue
		}

		v, err := io.ReadAll(io.LimitReader(part, 4096))
		part.Close()
		if err != nil {
			in.Cleanup()
			return nil, eris.Wrap(err, "api: read form field")
		}
		in.Params[part.FormName()] = strings.TrimSpace(string(v))
	}

	// Query parameters fill anything the form left out.
	for k, vs := range r.URL.Query() {
		if _, ok := in.Params[k]; !ok && len(vs) > 0 {
			in.Params[k] = vs[0]
		}
	}

	if in.Path == "" {
		if err := s.fetchSource(r, in); err != nil {
			in.Cleanup()
			return nil, err
		}
	}
	return in, nil
}

func (s *Server) saveUpload(in *input, part *multipart.Part) error {
	dir, err := os.MkdirTemp(s.opts.TempDir, "geodata-upload-*")
	if err != nil {
		return eris.Wrap(err, "api: create upload dir")
	}
	in.dir = dir

	name := safeName(part.FileName())
	dest := filepath.Join(dir, name)
	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "api: create upload file")
	}
	if _, err := io.Copy(f, part); err != nil {
		f.Close()
		return eris.Wrap(err, "api: save upload")
	}
	if err := f.Close(); err != nil {
		return eris.Wrap(err, "api: close upload")
	}
	in.Path, in.Name = dest, name
	return nil
}

func (s *Server) fetchSource(r *http.Request, in *input) error {
	src := in.Params["source"]
	if src == "" {
		return eris.Wrap(errBadRequest, "api: a file part or source URL is required")
	}
	// Local paths would expose the server's filesystem.
	if !fetcher.IsRemote(src) {
		return eris.Wrapf(errBadRequest, "api: source must be an http, https or ftp URL")
	}
	if s.opts.Resolver == nil {
		return eris.Wrap(errBadRequest, "api: remote sources are disabled")
	}

	local, err := s.opts.Resolver.Resolve(r.Context(), src)
	if err != nil {
		return err
	}
	in.local = local
	in.Path, in.Name = local.Path, filepath.Base(local.Path)
	return nil
}

// safeName reduces a client-supplied file name to a base name.
func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return defaultUploadName
	}
	return name
}
