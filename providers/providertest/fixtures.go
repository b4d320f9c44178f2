package providertest

// AWSDocument is an EC2 instance identity document as served by IMDS
const AWSDocument = `{
  "devpayProductCodes": null,
  "marketplaceProductCodes": ["1abc2defghijklm3nopqrs4tu"],
  "availabilityZone": "us-west-2b",
  "privateIp": "10.158.112.84",
  "version": "2017-09-30",
  "instanceId": "i-1234567890abcdef0",
  "billingProducts": null,
  "instanceType": "t2.micro",
  "accountId": "123456789012",
  "imageId": "ami-5fb8c835",
  "pendingTime": "2016-11-19T16:32:11Z",
  "architecture": "x86_64",
  "kernelId": null,
  "ramdiskId": null,
  "region": "us-west-2"
}`

// GCPDocument is a recursive GCE metadata document. The instance id is larger
// than a float64 can hold exactly.
const GCPDocument = `{
  "instance": {
    "attributes": {},
    "cpuPlatform": "Intel Broadwell",
    "description": "",
    "disks": [
      {
        "deviceName": "astorm-temp-delete-me-cloud-metadata",
        "index": 0,
        "interface": "SCSI",
        "mode": "READ_WRITE",
        "type": "PERSISTENT"
      }
    ],
    "guestAttributes": {},
    "hostname": "astorm-temp-delete-me-cloud-metadata.c.elastic-apm.internal",
    "id": 7684572792595385001,
    "image": "projects/debian-cloud/global/images/debian-10-buster-v20201216",
    "licenses": [{"id": "5543610867827062957"}],
    "machineType": "projects/513326162531/machineTypes/e2-micro",
    "maintenanceEvent": "NONE",
    "name": "astorm-temp-delete-me-cloud-metadata",
    "networkInterfaces": [
      {
        "accessConfigs": [{"externalIp": "35.247.28.180", "type": "ONE_TO_ONE_NAT"}],
        "dnsServers": ["169.254.169.254"],
        "gateway": "10.138.0.1",
        "ip": "10.138.0.2",
        "mac": "42:01:0a:8a:00:02",
        "mtu": 1460,
        "network": "projects/513326162531/networks/default"
      }
    ],
    "preempted": "FALSE",
    "remainingCpuTime": -1,
    "scheduling": {
      "automaticRestart": "TRUE",
      "onHostMaintenance": "MIGRATE",
      "preemptible": "FALSE"
    },
    "tags": ["http-server"],
    "virtualClock": {"driftToken": "0"},
    "zone": "projects/513326162531/zones/us-west1-b"
  },
  "oslogin": {"authenticate": {"sessions": {}}},
  "project": {
    "attributes": {"serial-port-enable": "1"},
    "numericProjectId": 513326162531,
    "projectId": "elastic-apm"
  }
}`

// AzureDocument is an Azure instance metadata document
const AzureDocument = `{
  "compute": {
    "azEnvironment": "AZUREPUBLICCLOUD",
    "isHostCompatibilityLayerVm": "true",
    "licenseType": "Windows_Client",
    "location": "westus",
    "name": "examplevmname",
    "offer": "Windows",
    "osProfile": {
      "adminUsername": "admin",
      "computerName": "examplevmname",
      "disablePasswordAuthentication": "true"
    },
    "osType": "Windows",
    "placementGroupId": "f67c14ab-e92c-408c-ae2d-da15866ec79a",
    "plan": {"name": "planName", "product": "planProduct", "publisher": "planPublisher"},
    "platformFaultDomain": "36",
    "platformUpdateDomain": "42",
    "provider": "Microsoft.Compute",
    "publisher": "RDFE-Test-Microsoft-Windows-Server-Group",
    "resourceGroupName": "macikgo-test-may-23",
    "resourceId": "/subscriptions/xxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxx/resourceGroups/macikgo-test-may-23/providers/Microsoft.Compute/virtualMachines/examplevmname",
    "securityProfile": {"secureBootEnabled": "true", "virtualTpmEnabled": "false"},
    "sku": "Windows-Server-2012-R2-Datacenter",
    "subscriptionId": "xxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxx",
    "tags": "baz:bash;foo:bar",
    "version": "15.05.22",
    "vmId": "02aab8a4-74ef-476e-8182-f6d2ba4166a6",
    "vmScaleSetName": "crpteste9vflji9",
    "vmSize": "Standard_A3",
    "zone": ""
  },
  "network": {
    "interface": [
      {
        "ipv4": {
          "ipAddress": [{"privateIpAddress": "10.144.133.132", "publicIpAddress": ""}],
          "subnet": [{"address": "10.144.133.128", "prefix": "26"}]
        },
        "ipv6": {"ipAddress": []},
        "macAddress": "0011AAFFBB22"
      }
    ]
  }
}`

// AzureMostlyEmptyDocument has a compute section with nothing in it
const AzureMostlyEmptyDocument = `{"compute": {}}`

// EmptyDocument is what a metadata service with nothing to say returns
const EmptyDocument = `{}`
