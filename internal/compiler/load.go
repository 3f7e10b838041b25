package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/stencil/internal/ir"
)

// LoadMode controls how errors are handled during spec loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the results of loading specs from a directory.
type LoadResult struct {
	Stencils  []ir.StencilSpec
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// Find returns the stencil with the given name.
func (r *LoadResult) Find(name string) (*ir.StencilSpec, bool) {
	name = normalizeName(name)
	for i := range r.Stencils {
		if r.Stencils[i].Name == name {
			return &r.Stencils[i], true
		}
	}
	return nil, false
}

// Names lists the loaded stencils in declaration order.
func (r *LoadResult) Names() []string {
	names := make([]string, len(r.Stencils))
	for i, s := range r.Stencils {
		names[i] = s.Name
	}
	return names
}

// LoadError represents an error that occurred during spec loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load error codes, shared by every CLI command that reads specs.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
)

// LoadDir loads, compiles and validates every stencil under the "stencil"
// field of the CUE package in dir.
func LoadDir(dir string, mode LoadMode) (*LoadResult, []error) {
	var errs []error

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("specs directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing specs directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Validate(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{
		CUEValue:  value,
		FileCount: len(cueFiles),
	}

	stencilsVal := value.LookupPath(cue.ParsePath("stencil"))
	if stencilsVal.Exists() {
		iter, iterErr := stencilsVal.Fields()
		if iterErr != nil {
			return result, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating stencils: %v", iterErr)}}
		}
		for iter.Next() {
			label := iter.Selector().Unquoted()
			spec, compileErr := CompileStencil(iter.Value())
			if compileErr != nil {
				errs = append(errs, convertCompileError(compileErr, "stencil."+label))
				if mode == LoadModeFailFast {
					return result, errs
				}
				continue
			}
			if verrs := Validate(spec); len(verrs) > 0 {
				for _, ve := range verrs {
					errs = append(errs, &LoadError{
						Code:    ve.Code,
						Message: fmt.Sprintf("stencil.%s.%s: %s", label, ve.Field, ve.Message),
						Pos:     iter.Value().Pos(),
					})
				}
				if mode == LoadModeFailFast {
					return result, errs
				}
				continue
			}
			result.Stencils = append(result.Stencils, *spec)
		}
	}

	if len(result.Stencils) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no stencils found in specs"})
	}

	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", context, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "rank":
		return ErrInvalidRank
	case field == "arrays":
		return ErrNoArrays
	case field == "shape":
		return ErrInvalidShape
	case field == "tiles":
		return ErrNoTiles
	case matchField(field, "arrays.", ".dims"):
		return ErrInvalidDims
	case matchField(field, "tiles[", ".guard"):
		return ErrUndefinedGuard
	case matchField(field, "tiles[", ""):
		return ErrInvalidTile
	default:
		return ErrCodeGeneric
	}
}

func matchField(field, prefix, suffix string) bool {
	return strings.HasPrefix(field, prefix) && strings.HasSuffix(field, suffix)
}
