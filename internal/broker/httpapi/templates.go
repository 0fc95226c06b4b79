package httpapi

import (
	"fmt"
	"os"
	"path/filepath"
)

// templateFiles is the closed map of starter content per workspace
// template, per SPEC_FULL.md §5.
var templateFiles = map[string]map[string]string{
	"python": {
		"main.py":          "def main():\n    print(\"Hello, cloudide\")\n\n\nif __name__ == \"__main__\":\n    main()\n",
		"requirements.txt": "",
	},
	"node-ts": {
		"package.json": `{
  "name": "workspace",
  "version": "0.1.0",
  "private": true,
  "scripts": {
    "build": "tsc",
    "start": "node dist/index.js"
  }
}
`,
		"src/index.ts": "export function main(): void {\n  console.log(\"Hello, cloudide\")\n}\n\nmain()\n",
		"tsconfig.json": `{
  "compilerOptions": {
    "target": "ES2020",
    "module": "commonjs",
    "outDir": "dist",
    "strict": true
  }
}
`,
	},
	"c": {
		"main.c": "#include <stdio.h>\n\nint main(void) {\n    printf(\"Hello, cloudide\\n\");\n    return 0;\n}\n",
		"Makefile": "main: main.c\n\tcc -o main main.c\n",
	},
	"web": {
		"index.html": "<!doctype html>\n<html>\n<head><link rel=\"stylesheet\" href=\"style.css\"></head>\n<body>\n<h1>Hello Web Template</h1>\n<script src=\"script.js\"></script>\n</body>\n</html>\n",
		"style.css":  "body {\n  font-family: sans-serif;\n}\n",
		"script.js":  "console.log(\"Hello, cloudide\")\n",
	},
}

// scaffoldTemplate writes template's starter files under root, which must
// already exist. Unknown templates scaffold nothing.
func scaffoldTemplate(root, template string) error {
	files, ok := templateFiles[template]
	if !ok {
		return nil
	}
	for relPath, content := range files {
		fullPath := filepath.Join(root, filepath.FromSlash(relPath))
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return fmt.Errorf("httpapi: scaffold %s: %w", relPath, err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
			return fmt.Errorf("httpapi: scaffold %s: %w", relPath, err)
		}
	}
	return nil
}
