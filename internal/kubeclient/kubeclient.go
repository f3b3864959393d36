// Package kubeclient builds the Kubernetes REST config and typed clientset the sidecar uses to
// watch and list ConfigMaps and Secrets. Grounded on cmd/operator/main.go's kubeconfig/homedir
// flag block, generalized to prefer in-cluster config (the sidecar's normal deployment mode)
// and fall back to an explicit kubeconfig only when one is supplied.
package kubeclient

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

// Options configures client construction.
type Options struct {
	// Kubeconfig is the path to an explicit kubeconfig file. Empty means "use in-cluster config".
	Kubeconfig string
	// APIServerURL overrides the server URL from the kubeconfig's current context; only
	// meaningful together with Kubeconfig.
	APIServerURL string
	// SkipTLSVerify relaxes TLS verification on the API server connection (SKIP_TLS_VERIFY).
	SkipTLSVerify bool
}

// DefaultKubeconfigPath returns the conventional kubeconfig location under the user's home
// directory when a file exists there, or "" otherwise (so New falls back to in-cluster config),
// mirroring cmd/operator/main.go's homedir fallback.
func DefaultKubeconfigPath() string {
	if home := homedir.HomeDir(); home != "" {
		path := filepath.Join(home, ".kube", "config")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// New builds a typed Kubernetes clientset. With an empty Kubeconfig it uses in-cluster config
// (rest.InClusterConfig), the sidecar's normal deployment mode; otherwise it loads the given
// kubeconfig file the way cmd/operator/main.go does for local/out-of-cluster runs.
func New(opts Options) (kubernetes.Interface, error) {
	cfg, err := restConfig(opts)
	if err != nil {
		return nil, errors.Wrap(err, "building kubernetes client config")
	}
	if opts.SkipTLSVerify {
		cfg.TLSClientConfig = rest.TLSClientConfig{Insecure: true}
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "constructing kubernetes clientset")
	}
	return clientset, nil
}

func restConfig(opts Options) (*rest.Config, error) {
	if opts.Kubeconfig == "" {
		return rest.InClusterConfig()
	}
	return clientcmd.BuildConfigFromFlags(opts.APIServerURL, opts.Kubeconfig)
}
