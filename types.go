package outline

import (
	"github.com/jward/outline/internal/config"
	"github.com/jward/outline/internal/diag"
	"github.com/jward/outline/internal/model"
	"github.com/jward/outline/internal/oracle"
	"github.com/jward/outline/internal/runtime"
	"github.com/jward/outline/internal/store"
)

// Public type aliases for internal types used in the Engine and
// QueryBuilder API. External consumers use these names; no conversion is
// needed.

type Module = model.Module
type Index = model.Index
type Project = model.Project
type Definition = model.Definition
type ClassDef = model.ClassDef
type FunctionDef = model.FunctionDef
type ImportEntry = model.ImportEntry
type CallSite = model.CallSite
type Constant = model.Constant

type Diagnostic = diag.Diagnostic
type Error = diag.Error

type Store = store.Store
type File = store.File
type DefinitionRow = store.Definition

type Config = config.Config
type Finding = runtime.Finding
type Mismatch = oracle.Mismatch
