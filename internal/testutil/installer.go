package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// fakeInstallerScript imitates the installer's terminal behavior closely
// enough to drive every scenario step: version and help output, argument
// errors, the five wizard prompts, single-key confirmations, the
// prerequisites check and an activation script that exports IDF_PATH.
//
// Behavior switches (environment):
//
//	FAKE_EIM_VERSION          version line for -V (default "eim 0.1.6")
//	FAKE_EIM_IDF_VERSION      version installed when -i is absent (default v5.4)
//	FAKE_EIM_MISSING_PREREQS  non-empty: fail the prerequisites check
//	FAKE_EIM_OS=windows       offer to install prerequisites instead of failing
const fakeInstallerScript = `#!/bin/sh
version="${FAKE_EIM_VERSION:-eim 0.1.6}"

usage() {
  echo "ESP-IDF Installation Manager"
  echo
  echo "Usage: eim [OPTIONS]"
  echo
  echo "Options:"
  echo "  -p, --path <PATH>                  Base path to which IDF will be installed"
  echo "  -t, --target <TARGET>              Which chip to install the toolchain for"
  echo "  -i, --idf-versions <VERSIONS>      Which ESP-IDF versions to install"
  echo "  -m, --mirror <MIRROR>              URL of the tools mirror"
  echo "      --idf-mirror <IDF_MIRROR>      URL of the ESP-IDF mirror"
  echo "  -r, --recurse-submodules <BOOL>    Fetch ESP-IDF submodules"
  echo "  -n, --non-interactive <BOOL>       Run without asking questions"
  echo "  -V, --version                      Print version"
  echo "  -h, --help                         Print help"
}

confirm() {
  printf "%s [y/N] " "$1"
  saved=$(stty -g 2>/dev/null)
  stty -icanon min 1 2>/dev/null
  key=$(dd bs=1 count=1 2>/dev/null)
  [ -n "$saved" ] && stty "$saved" 2>/dev/null
  echo
  [ "$key" = y ] || [ "$key" = Y ]
}

ask() {
  printf "? %s\n" "$1"
  shift
  for choice in "$@"; do
    printf "  %s\n" "$choice"
  done
  read -r reply
}

value() {
  if [ $# -lt 2 ]; then
    echo "error: a value is required for '$1' but none was supplied"
    exit 2
  fi
}

folder=""
versions=""
recursive=false
noninteractive=false
wizard=true

while [ $# -gt 0 ]; do
  case "$1" in
    -V|--version) echo "$version"; exit 0 ;;
    -h|--help) usage; exit 0 ;;
    -p|--path) value "$@"; folder="$2"; wizard=false; shift 2 ;;
    -i|--idf-versions) value "$@"; versions="$2"; wizard=false; shift 2 ;;
    -r|--recurse-submodules) value "$@"; recursive="$2"; wizard=false; shift 2 ;;
    -n|--non-interactive) value "$@"; noninteractive="$2"; wizard=false; shift 2 ;;
    -t|--target|-m|--mirror|--idf-mirror|--tool-download-folder-name|--tool-install-folder-name|--idf-tools-path|--tools-json-file)
      value "$@"; wizard=false; shift 2 ;;
    *)
      echo "error: unexpected argument '$1' found"
      echo
      echo "Usage: eim [OPTIONS]"
      exit 2
      ;;
  esac
done

if [ -n "$FAKE_EIM_MISSING_PREREQS" ]; then
  if [ "$FAKE_EIM_OS" = windows ]; then
    if confirm "Do you want to install prerequisites?"; then
      echo "Installing prerequisites"
    else
      echo "Please install the missing prerequisites and try again"
      exit 1
    fi
  else
    echo "Error: Please install the missing prerequisites"
    exit 1
  fi
fi

if [ "$wizard" = true ]; then
  ask "Please select all of the target platforms" "all" "esp32" "esp32s3" "esp32c6"
  ask "Please select the desired ESP-IDF version" "${FAKE_EIM_IDF_VERSION:-v5.4}" "master"
  ask "Select the source from which to download esp-idf" "https://github.com" "https://jihulab.com/esp-mirror"
  ask "Select a source from which to download tools" "https://github.com" "https://dl.espressif.com/github_assets"
  printf "? Please select the ESP-IDF installation location (%s/.espressif)\n" "$HOME"
  read -r reply
  [ -n "$reply" ] && folder="$reply"
fi

folder="${folder:-$HOME/.espressif}"
ver=$(printf "%s" "${versions:-${FAKE_EIM_IDF_VERSION:-v5.4}}" | cut -d, -f1)
idf="$folder/$ver/esp-idf"
example="$idf/examples/get-started/hello_world"

echo "Installing ESP-IDF $ver to $folder"
echo "Downloading tools"
mkdir -p "$example/main"
touch "$example/pytest_hello_world.py" "$example/sdkconfig.ci" "$example/CMakeLists.txt" "$example/main/hello_world_main.c"

if [ "$recursive" = true ]; then
  echo "Finished fetching submodules"
fi

mkdir -p "$idf/tools"
cat > "$idf/tools/idf.py" <<'EOF'
#!/bin/sh
case "$1" in
  set-target) echo "Set Target to: $2" ;;
  build) echo "Project build complete. To flash, run: idf.py flash" ;;
  *) echo "idf.py $*" ;;
esac
EOF
chmod +x "$idf/tools/idf.py"

cat > "$folder/activate_idf_$ver.sh" <<EOF
export IDF_PATH="$idf"
export PATH="$idf/tools:\$PATH"
echo "Environment ready for ESP-IDF $ver"
EOF

if [ "$noninteractive" != true ]; then
  if confirm "Do you want to save the installer configuration?"; then
    echo "Configuration saved to eim_config.toml"
  fi
fi

echo "Successfully installed IDF"
echo "Now you can start using IDF tools"
`

// FakeInstaller writes an executable stand-in for the installer into a
// temporary directory and returns its path.
func FakeInstaller(t testing.TB) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "eim")
	if err := os.WriteFile(path, []byte(fakeInstallerScript), 0o755); err != nil {
		t.Fatalf("write fake installer: %v", err)
	}

	return path
}
