/*
Copyright 2024.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"flag"
	"os"
	"strings"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	// to ensure that exec-entrypoint and run can make use of them.
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/yaml"

	v1 "github.com/accelstack/pool-provisioner/api/v1"
	"github.com/accelstack/pool-provisioner/internal/catalog"
	"github.com/accelstack/pool-provisioner/internal/cloudprovider"
	"github.com/accelstack/pool-provisioner/internal/config"
	"github.com/accelstack/pool-provisioner/internal/jobspec"
	"github.com/accelstack/pool-provisioner/internal/provisioner"
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
}

func main() {
	var configPath string
	var jobPath string
	var mode string

	flag.StringVar(&configPath, "config", "/etc/pool-provisioner/config.yaml",
		"Path to the provisioner config file.")
	flag.StringVar(&jobPath, "job", "", "Path to the job request YAML file.")
	flag.StringVar(&mode, "mode", "create", "Operation to run: create or delete.")
	opts := zap.Options{
		Development: true,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
	ctx := ctrl.SetupSignalHandler()

	cfg, err := config.Load(configPath)
	if err != nil {
		setupLog.Error(err, "unable to load config file", "path", configPath)
		os.Exit(1)
	}

	job, err := loadJob(jobPath)
	if err != nil {
		setupLog.Error(err, "unable to load job request", "path", jobPath)
		os.Exit(1)
	}

	cat := catalog.Builtin()
	if cfg.CatalogPath != "" {
		if cat, err = catalog.Load(cfg.CatalogPath); err != nil {
			setupLog.Error(err, "unable to load capacity catalog", "path", cfg.CatalogPath)
			os.Exit(1)
		}
	}

	poolClient, err := cloudprovider.NewNodePoolClient(ctx, cfg, kubeClientFor(cfg))
	if err != nil {
		setupLog.Error(err, "unable to initialize node pool backend", "backend", cfg.Backend)
		os.Exit(1)
	}

	prov := provisioner.New(cfg, cat, poolClient)

	switch strings.ToLower(mode) {
	case "create":
		sig, err := jobspec.SignalsFromEnv()
		if err != nil {
			setupLog.Error(err, "unable to read scheduling signals")
			os.Exit(1)
		}
		if err := prov.CreateFor(ctx, job, sig); err != nil {
			setupLog.Error(err, "node pool creation failed")
			os.Exit(1)
		}
	case "delete":
		if err := prov.DeleteFor(ctx, job); err != nil {
			setupLog.Error(err, "node pool deletion failed")
			os.Exit(1)
		}
	default:
		setupLog.Info("unknown mode", "mode", mode)
		os.Exit(2)
	}
}

func loadJob(path string) (*v1.JobRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	job := &v1.JobRequest{}
	if err := yaml.Unmarshal(data, job); err != nil {
		return nil, err
	}
	return job, nil
}

// kubeClientFor builds an in-cluster client for backends that talk to the
// Kubernetes API. Backends that only talk to cloud APIs get nil.
func kubeClientFor(cfg *config.Config) client.Client {
	if strings.ToLower(cfg.Backend) != "karpenter" {
		return nil
	}
	restConfig, err := ctrl.GetConfig()
	if err != nil {
		setupLog.Error(err, "unable to load kubeconfig")
		os.Exit(1)
	}
	kube, err := client.New(restConfig, client.Options{Scheme: scheme})
	if err != nil {
		setupLog.Error(err, "unable to create kubernetes client")
		os.Exit(1)
	}
	return kube
}
