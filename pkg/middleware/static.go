package middleware

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
)

// indexFile はディレクトリへのリクエストで返すファイル名。
const indexFile = "index.html"

// staticFS はルートディレクトリ配下のファイルだけを公開するファイルシステム。
// ドットで始まるファイルやディレクトリ（.env など）は存在しないものとして扱う。
type staticFS struct {
	// root は公開するディレクトリの絶対パス。
	root string
}

var _ static.ServeFileSystem = (*staticFS)(nil)

// newStaticFS はrootを公開する staticFS を生成する。
func newStaticFS(root string) (*staticFS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("ディレクトリではありません: " + abs)
	}
	return &staticFS{root: abs}, nil
}

// resolve はリクエストパスをroot配下の実パスに変換する。
// ドットで始まる要素を含むパスは拒否する。
func (fs *staticFS) resolve(name string) (string, bool) {
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if strings.HasPrefix(part, ".") {
			return "", false
		}
	}
	p, err := securejoin.SecureJoin(fs.root, name)
	if err != nil {
		return "", false
	}
	return p, true
}

// Open はhttp.FileSystemの実装。
func (fs *staticFS) Open(name string) (http.File, error) {
	p, ok := fs.resolve(name)
	if !ok {
		return nil, os.ErrNotExist
	}
	return os.Open(p)
}

// Exists はリクエストパスに対応する公開可能なファイルがあるかを返す。
// index.html を持たないディレクトリは一覧を出さないよう存在しない扱いにする。
func (fs *staticFS) Exists(prefix, path string) bool {
	name, found := strings.CutPrefix(path, prefix)
	if !found {
		return false
	}
	p, ok := fs.resolve(name)
	if !ok {
		return false
	}
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	if info.IsDir() {
		info, err = os.Stat(filepath.Join(p, indexFile))
		return err == nil && !info.IsDir()
	}
	return true
}

// StaticFiles はroot配下のファイルをGET/HEADで配信するGinミドルウェアを返す。
// 対応するファイルが無い場合は後続のハンドラーに処理を渡す。
func StaticFiles(root string) (gin.HandlerFunc, error) {
	fs, err := newStaticFS(root)
	if err != nil {
		return nil, err
	}
	serve := static.Serve("/", fs)

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			return
		}
		serve(c)
	}, nil
}
