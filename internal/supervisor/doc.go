// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

/*
Package supervisor provides process supervision for the serve command using suture v4.

# Overview

Long-running services are grouped into three layers:

	RootSupervisor ("vaultkeeper")
	├── DataSupervisor ("data-layer")
	│   └── BadgerGCService
	├── WorkerSupervisor ("worker-layer")
	│   ├── cloud.Worker (if cloud.enabled)
	│   ├── backup.Pruner (if retention.enabled)
	│   └── events.AuditLogger (if events.enabled)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (metrics and health)

A crashed worker is restarted with backoff while the other layers keep
running. Supervisor events are logged through sutureslog, which writes to
the zerolog logger via logging.NewSlogLogger.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}

	tree.AddDataService(services.NewBadgerGCService(cat, cfg.Catalog.GCInterval, cfg.Catalog.GCRatio))
	tree.AddWorkerService(worker)
	tree.AddWorkerService(backup.NewPruner(manager, cfg.Retention.Interval))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	return tree.Serve(ctx)

# Shutdown

Canceling the context stops every service. Each gets ShutdownTimeout to
return; UnstoppedServiceReport lists the ones that did not.
*/
package supervisor
